package main

import (
	"fmt"
	"os"

	"topo/internal/layer"
	"topo/internal/merge"
	"topo/internal/render"

	"github.com/urfave/cli/v2"
)

func importCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "convert an existing gitlab.rb, TOML, YAML or JSON layer into another syntax",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "syntax", Aliases: []string{"s"}, Usage: "output syntax (" + render.SyntaxNames() + ")"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the result to `FILE`"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("import requires exactly one FILE argument", exitUsage)
			}
			var fallback string
			if s, ok := render.ForPath(c.String("out")); ok {
				fallback = string(s)
			}
			syntax, err := t.syntax(c, fallback)
			if err != nil {
				return err
			}
			return t.importLayer(c.Args().First(), c.String("out"), syntax)
		},
	}
}

// importLayer re-renders the keys of a single layer file. No role or
// default layer is applied, so the output holds exactly the imported keys.
func (t *tool) importLayer(path, out string, syntax render.Syntax) error {
	l, err := layer.NewLoader(t.schema, t.logger).Load(path)
	if err != nil {
		return cli.Exit(err.Error(), exitLoad)
	}
	t.logger.Debug("imported layer", "path", path, "keys", layer.Describe(l))

	data, err := render.Render(merge.Merge(t.schema, nil, nil, l), syntax)
	if err != nil {
		return cli.Exit(err.Error(), exitRender)
	}

	if out == "" {
		t.stdout.Write(data)
		return nil
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return cli.Exit(fmt.Sprintf("cannot write %s: %v", out, err), exitUsage)
	}
	return nil
}
