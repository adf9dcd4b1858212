package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"topo/internal/artifact"
	"topo/internal/layer"
	"topo/internal/render"
	"topo/internal/topology"
	"topo/internal/validator"

	"github.com/urfave/cli/v2"
)

type nodeJSON struct {
	Node   string `json:"node"`
	Peer   string `json:"peer,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	validator.Report
}

func topologyCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:      "topology",
		Usage:     "resolve every node of a topology file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "write one rendered file per node into `DIR`"},
			&cli.StringFlag{Name: "syntax", Aliases: []string{"s"}, Usage: "output syntax (" + render.SyntaxNames() + ")"},
			&cli.BoolFlag{Name: "json", Usage: "print per-node results as JSON"},
			&cli.BoolFlag{Name: "drift", Usage: "compare every node against the baseline named after it"},
			&cli.BoolFlag{Name: "save-baselines", Usage: "store every valid node's artifact as a baseline named after the node"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("topology requires exactly one FILE argument", exitUsage)
			}
			return t.topology(c, c.Args().First())
		},
	}
}

func (t *tool) topology(c *cli.Context, path string) error {
	f, err := topology.Load(path)
	if err != nil {
		return cli.Exit(err.Error(), exitLoad)
	}

	syntax, err := t.syntax(c, f.Syntax)
	if err != nil {
		return err
	}
	version := t.version
	if version == nil {
		version = f.Version()
	}

	loader := layer.NewLoader(t.schema, t.logger)
	results, err := topology.Resolve(c.Context, f, t.resolver(version), loader, syntax)
	if err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}

	outDir := c.String("out-dir")
	written := make([]string, len(results))
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return cli.Exit(fmt.Sprintf("cannot create %s: %v", outDir, err), exitUsage)
		}
		for i, r := range results {
			if r.Err != nil || r.Result.Output == nil {
				continue
			}
			written[i] = filepath.Join(outDir, r.Node.Name+syntax.Ext())
			if err := os.WriteFile(written[i], r.Result.Output, 0644); err != nil {
				return cli.Exit(fmt.Sprintf("cannot write config: %s: %v", written[i], err), exitUsage)
			}
		}
	}

	if c.Bool("json") {
		if err := t.printNodesJSON(results, written); err != nil {
			return err
		}
	} else {
		t.printNodes(path, results, written)
	}

	if c.Bool("drift") || c.Bool("save-baselines") {
		key, err := t.secretKey()
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Result.Config == nil || r.Err != nil {
				continue
			}
			art := artifact.Generate(r.Result.Config, r.Node.Role, key)
			if c.Bool("drift") {
				t.compareBaseline(c.Bool("json"), path, r.Node.Name, art)
			}
			if c.Bool("save-baselines") {
				if err := t.saveBaseline(r.Node.Name, r.Node.Name, art); err != nil {
					return err
				}
			}
		}
	}

	// The first failing node decides the exit code.
	warned := false
	for _, r := range results {
		if r.Err != nil {
			return cli.Exit("", exitCode(r.Err))
		}
		if len(validator.Filter(r.Result.Findings, validator.SeverityWarning)) > 0 {
			warned = true
		}
	}
	if warned && t.cfg.Strict {
		return cli.Exit("warnings are fatal in strict mode", exitValidation)
	}
	return nil
}

func (t *tool) printNodes(file string, results []topology.NodeResult, written []string) {
	for i, r := range results {
		if t.cfg.CI {
			fmt.Fprint(t.stderr, validator.FormatCI(file, r.Result.Findings))
		} else if len(r.Result.Findings) > 0 {
			fmt.Fprintf(t.stderr, "── node '%s' ──\n", r.Node.Name)
			fmt.Fprint(t.stderr, validator.FormatFindings(r.Node.Role, r.Result.Findings))
		}

		var invalid *validator.ValidationError
		switch {
		case r.Err == nil && written[i] != "":
			fmt.Fprintf(t.stdout, "✓ %s (%s) → %s\n", r.Node.Name, r.Node.Role, written[i])
		case r.Err == nil:
			fmt.Fprintf(t.stdout, "✓ %s (%s)\n", r.Node.Name, r.Node.Role)
		case errors.As(r.Err, &invalid):
			fmt.Fprintf(t.stdout, "✗ %s (%s)\n", r.Node.Name, r.Node.Role)
		default:
			fmt.Fprintf(t.stdout, "✗ %s (%s): %v\n", r.Node.Name, r.Node.Role, r.Err)
		}
	}
}

func (t *tool) printNodesJSON(results []topology.NodeResult, written []string) error {
	out := make([]nodeJSON, len(results))
	for i, r := range results {
		errs, warns := validator.Count(r.Result.Findings)
		n := nodeJSON{
			Node:   r.Node.Name,
			Peer:   r.Peer,
			Output: written[i],
			Report: validator.Report{
				Role:         r.Node.Role,
				Valid:        errs == 0,
				ErrorCount:   errs,
				WarningCount: warns,
				Findings:     r.Result.Findings,
			},
		}
		if n.Findings == nil {
			n.Findings = []validator.Finding{}
		}
		if r.Err != nil {
			n.Error = r.Err.Error()
		}
		out[i] = n
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot format results: %v", err), exitUsage)
	}
	fmt.Fprintln(t.stdout, string(data))
	return nil
}
