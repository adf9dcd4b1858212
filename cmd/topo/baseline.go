package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"topo/internal/baseline"

	"github.com/urfave/cli/v2"
)

func baselineCommand(t *tool) *cli.Command {
	nameArg := func(c *cli.Context) (string, error) {
		if c.NArg() != 1 {
			return "", cli.Exit(fmt.Sprintf("%s requires exactly one NAME argument", c.Command.Name), exitUsage)
		}
		return c.Args().First(), nil
	}

	return &cli.Command{
		Name:  "baseline",
		Usage: "manage stored baseline artifacts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list stored baselines",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "print the list as JSON"}},
				Action: func(c *cli.Context) error {
					summaries, err := t.baselines().List()
					if err != nil {
						return cli.Exit(fmt.Sprintf("cannot list baselines: %v", err), exitUsage)
					}
					if c.Bool("json") {
						data, err := json.MarshalIndent(summaries, "", "  ")
						if err != nil {
							return cli.Exit(err.Error(), exitUsage)
						}
						fmt.Fprintln(t.stdout, string(data))
						return nil
					}
					if len(summaries) == 0 {
						fmt.Fprintln(t.stdout, "No baselines stored.")
						return nil
					}
					w := tabwriter.NewWriter(t.stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "NAME\tROLE\tCONFIG VERSION\tCREATED")
					for _, s := range summaries {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Role, shortVersion(s.ConfigVersion), s.Timestamp.Format(time.RFC3339))
					}
					return w.Flush()
				},
			},
			{
				Name:      "show",
				Usage:     "print a stored baseline artifact",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					b, err := t.baselines().Load(name)
					if err != nil {
						return cli.Exit(err.Error(), baselineExit(err))
					}
					data, err := b.Artifact.ToJSON()
					if err != nil {
						return cli.Exit(err.Error(), exitUsage)
					}
					fmt.Fprintln(t.stdout, string(data))
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "remove a stored baseline",
				ArgsUsage: "NAME",
				Action: func(c *cli.Context) error {
					name, err := nameArg(c)
					if err != nil {
						return err
					}
					if err := t.baselines().Delete(name); err != nil {
						return cli.Exit(err.Error(), baselineExit(err))
					}
					fmt.Fprintf(t.stdout, "Deleted baseline '%s'\n", name)
					return nil
				},
			},
		},
	}
}

func baselineExit(err error) int {
	if errors.Is(err, baseline.ErrBaselineNotFound) {
		return exitUsage
	}
	return exitLoad
}

// shortVersion trims a sha256: version to 12 hex digits.
func shortVersion(v string) string {
	const prefix, n = "sha256:", 12
	if len(v) > len(prefix)+n {
		return v[len(prefix) : len(prefix)+n]
	}
	return v
}
