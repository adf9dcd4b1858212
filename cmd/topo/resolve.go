package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"topo/internal/artifact"
	"topo/internal/baseline"
	"topo/internal/drift"
	"topo/internal/layer"
	"topo/internal/merge"
	"topo/internal/render"
	"topo/internal/resolver"
	"topo/internal/validator"

	"github.com/urfave/cli/v2"
)

func layerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "deployment role `ID`", Required: true},
		&cli.StringFlag{Name: "defaults", Usage: "site defaults layer `FILE`"},
		&cli.StringSliceFlag{Name: "user", Aliases: []string{"u"}, Usage: "user layer `FILE`, later files win"},
		&cli.StringSliceFlag{Name: "peer", Usage: "layer `FILE` of the paired node"},
		&cli.StringFlag{Name: "peer-role", Usage: "role `ID` of the paired node"},
		&cli.BoolFlag{Name: "json", Usage: "print findings as JSON"},
		&cli.StringFlag{Name: "artifact-file", Usage: "write the config artifact to `FILE`"},
		&cli.StringFlag{Name: "detect-drift", Usage: "compare against the artifact in `FILE`"},
		&cli.StringFlag{Name: "baseline", Usage: "compare against the stored baseline `NAME`"},
		&cli.StringFlag{Name: "save-baseline", Usage: "store the config artifact as baseline `NAME`"},
	}
}

func resolveCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "merge, validate and render the configuration of a node",
		Flags: append(layerFlags(),
			&cli.StringFlag{Name: "syntax", Aliases: []string{"s"}, Usage: "output syntax (" + render.SyntaxNames() + ")"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the rendered config to `FILE`"},
		),
		Action: func(c *cli.Context) error {
			if c.Bool("json") && c.String("out") == "" {
				return cli.Exit("--json requires --out", exitUsage)
			}
			var fallback string
			if s, ok := render.ForPath(c.String("out")); ok {
				fallback = string(s)
			}
			syntax, err := t.syntax(c, fallback)
			if err != nil {
				return err
			}
			return t.resolve(c, syntax)
		},
	}
}

func validateCommand(t *tool) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "merge and validate the configuration of a node without rendering",
		Flags:  layerFlags(),
		Action: func(c *cli.Context) error { return t.resolve(c, "") },
	}
}

// request loads the layers named on the command line. TOPO_SET_*
// variables are applied on top of the user files.
func (t *tool) request(c *cli.Context, loader *layer.Loader) (resolver.Request, error) {
	req := resolver.Request{Role: c.String("role")}

	if path := c.String("defaults"); path != "" {
		d, err := loader.Load(path)
		if err != nil {
			return req, cli.Exit(fmt.Sprintf("defaults: %v", err), exitLoad)
		}
		req.Defaults = merge.Layer(t.schema.DefaultLayer())
		for k, v := range d {
			req.Defaults[k] = v
		}
	}

	user, err := loader.LoadAll(c.StringSlice("user"))
	if err != nil {
		return req, cli.Exit(err.Error(), exitLoad)
	}
	for k, v := range loader.FromEnviron(t.environ) {
		user[k] = v
	}
	req.User = user
	t.logger.Debug("loaded user layer", "files", len(c.StringSlice("user")), "keys", layer.Describe(user))

	peerFiles, peerRole := c.StringSlice("peer"), c.String("peer-role")
	switch {
	case len(peerFiles) > 0 && peerRole == "":
		return req, cli.Exit("--peer requires --peer-role", exitUsage)
	case len(peerFiles) == 0 && peerRole != "":
		return req, cli.Exit("--peer-role requires --peer", exitUsage)
	case peerRole != "":
		pl, err := loader.LoadAll(peerFiles)
		if err != nil {
			return req, cli.Exit(fmt.Sprintf("peer: %v", err), exitLoad)
		}
		req.Peer = &resolver.Peer{Role: peerRole, Defaults: req.Defaults, User: pl}
	}
	return req, nil
}

// resolve runs the pipeline for a single node. An empty syntax validates
// only.
func (t *tool) resolve(c *cli.Context, syntax render.Syntax) error {
	loader := layer.NewLoader(t.schema, t.logger)
	req, err := t.request(c, loader)
	if err != nil {
		return err
	}
	req.Syntax = syntax

	res, err := t.resolver(t.version).Resolve(req)
	if res.Config == nil {
		return cli.Exit(err.Error(), exitCode(err))
	}

	if perr := t.report(c.Bool("json"), t.annotationFile(c), req.Role, res.Findings); perr != nil {
		return perr
	}

	var invalid *validator.ValidationError
	switch {
	case errors.As(err, &invalid):
		return cli.Exit("", exitValidation)
	case err != nil:
		return cli.Exit(err.Error(), exitCode(err))
	case t.cfg.Strict && len(validator.Filter(res.Findings, validator.SeverityWarning)) > 0:
		return cli.Exit("warnings are fatal in strict mode", exitValidation)
	}

	if syntax == "" {
		if len(res.Findings) == 0 && !c.Bool("json") {
			fmt.Fprintf(t.stdout, "✓ Config valid for role '%s'\n", req.Role)
		}
	} else if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, res.Output, 0644); err != nil {
			return cli.Exit(fmt.Sprintf("cannot write config: %s: %v", out, err), exitUsage)
		}
	} else {
		t.stdout.Write(res.Output)
	}

	return t.artifact(c, res)
}

// annotationFile is the file CI annotations point at: the last user layer.
func (t *tool) annotationFile(c *cli.Context) string {
	if files := c.StringSlice("user"); len(files) > 0 {
		return files[len(files)-1]
	}
	return "topo"
}

// report prints findings: a JSON report on stdout, or text or CI
// annotations on stderr.
func (t *tool) report(asJSON bool, file, roleID string, fs []validator.Finding) error {
	switch {
	case asJSON:
		out, err := validator.FormatJSON(roleID, fs)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		fmt.Fprintln(t.stdout, out)
	case t.cfg.CI:
		fmt.Fprint(t.stderr, validator.FormatCI(file, fs))
	default:
		fmt.Fprint(t.stderr, validator.FormatFindings(roleID, fs))
	}
	return nil
}

// artifact compares the resolved config with a baseline artifact, from a
// file or the baseline store, and writes the new one. Drift is reported but
// never fails the command.
func (t *tool) artifact(c *cli.Context, res resolver.Result) error {
	driftFile, driftName := c.String("detect-drift"), c.String("baseline")
	artifactPath, saveName := c.String("artifact-file"), c.String("save-baseline")
	if driftFile == "" && driftName == "" && artifactPath == "" && saveName == "" {
		return nil
	}
	key, err := t.secretKey()
	if err != nil {
		return err
	}
	art := artifact.Generate(res.Config, res.Role.ID, key)

	if driftFile != "" {
		prev, err := artifact.Load(driftFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			t.logger.Info("no baseline artifact, skipping drift detection", "path", driftFile)
		case err != nil:
			fmt.Fprintf(t.stderr, "Warning: cannot load baseline: %v\n", err)
		default:
			t.printDrift(c.Bool("json"), t.annotationFile(c), drift.Detect(driftFile, prev, art))
		}
	}
	if driftName != "" {
		t.compareBaseline(c.Bool("json"), t.annotationFile(c), driftName, art)
	}

	if artifactPath != "" {
		if err := art.WriteToFile(artifactPath); err != nil {
			return cli.Exit(fmt.Sprintf("cannot write artifact: %s: %v", artifactPath, err), exitUsage)
		}
		t.logger.Debug("wrote artifact", "path", artifactPath, "config_version", art.ConfigVersion)
	}
	if saveName != "" {
		return t.saveBaseline(saveName, "", art)
	}
	return nil
}

func (t *tool) baselines() *baseline.Store {
	return baseline.NewStore(baseline.ResolveDir(t.environ))
}

// secretKey returns the key secret digests are computed with. It lives in
// the baseline directory so that artifacts and baselines compare.
func (t *tool) secretKey() ([]byte, error) {
	if t.key == nil {
		key, err := t.baselines().SecretKey()
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("cannot load secret key: %v", err), exitUsage)
		}
		t.key = key
	}
	return t.key, nil
}

// compareBaseline reports drift against a stored baseline. A missing
// baseline is not an error.
func (t *tool) compareBaseline(asJSON bool, file, name string, art artifact.ConfigArtifact) {
	b, err := t.baselines().Load(name)
	switch {
	case errors.Is(err, baseline.ErrBaselineNotFound):
		t.logger.Info("no stored baseline, skipping drift detection", "baseline", name)
	case err != nil:
		fmt.Fprintf(t.stderr, "Warning: cannot load baseline: %v\n", err)
	default:
		t.printDrift(asJSON, file, drift.Detect(name, b.Artifact, art))
	}
}

func (t *tool) saveBaseline(name, node string, art artifact.ConfigArtifact) error {
	b := baseline.Baseline{Name: name, Node: node, Artifact: art, Timestamp: time.Now().UTC()}
	if err := t.baselines().Save(b); err != nil {
		return cli.Exit(fmt.Sprintf("cannot save baseline: %v", err), exitUsage)
	}
	t.logger.Debug("saved baseline", "baseline", name, "config_version", art.ConfigVersion)
	return nil
}

func (t *tool) printDrift(asJSON bool, file string, report drift.DriftReport) {
	if !report.HasDrift {
		return
	}
	switch {
	case asJSON:
		out, err := drift.FormatJSON(report)
		if err != nil {
			fmt.Fprintf(t.stderr, "Error: cannot format drift report: %v\n", err)
			return
		}
		fmt.Fprintln(t.stderr, out)
	case t.cfg.CI:
		fmt.Fprint(t.stderr, drift.FormatCI(file, report))
	default:
		fmt.Fprint(t.stderr, drift.FormatCLI(report))
	}
}
