package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"topo/internal/conf"
	"topo/internal/render"
	"topo/internal/resolver"
	"topo/internal/role"
	"topo/internal/schema"
	"topo/internal/validator"

	"github.com/Masterminds/semver/v3"
	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitValidation  = 2
	exitLoad        = 3
	exitUnknownRole = 4
	exitRender      = 5
)

func main() {
	exitCode := run(os.Args[1:], os.Environ(), os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// run executes the command line and returns the process exit code. It is
// separated from main() to enable testing.
func run(args []string, environ []string, stdout, stderr io.Writer) int {
	t := &tool{environ: environ, stdout: stdout, stderr: stderr}

	app := &cli.App{
		Name:      "topo",
		Usage:     "resolve, validate and render node configuration for a deployment role",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "tool configuration `FILE`", Value: conf.DefaultPath},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "schema", Usage: "schema extension `FILE`"},
			&cli.StringFlag{Name: "platform-version", Usage: "platform `VERSION` for compatibility checks"},
			&cli.BoolFlag{Name: "ci", Usage: "emit GitHub Actions annotations"},
			&cli.BoolFlag{Name: "strict", Usage: "treat warnings as failures"},
		},
		Before: t.setup,
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return cli.Exit(fmt.Sprintf("unknown command '%s'", c.Args().First()), exitUsage)
			}
			return cli.ShowAppHelp(c)
		},
		Commands: []*cli.Command{
			rolesCommand(t),
			rulesCommand(t),
			resolveCommand(t),
			validateCommand(t),
			topologyCommand(t),
			importCommand(t),
			baselineCommand(t),
		},
		// Exit codes are mapped by run, never by the library.
		ExitErrHandler: func(*cli.Context, error) {},
	}

	err := app.RunContext(context.Background(), append([]string{"topo"}, args...))
	if err == nil {
		return exitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := ec.Error(); msg != "" {
			fmt.Fprintln(stderr, "Error:", msg)
		}
		return ec.ExitCode()
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitUsage
}

// tool carries the state shared by every command once setup has run.
type tool struct {
	environ []string
	stdout  io.Writer
	stderr  io.Writer

	cfg      conf.Config
	logger   *slog.Logger
	schema   *schema.Schema
	registry *role.Registry
	version  *semver.Version
	key      []byte
}

// setup layers the tool configuration (files, environment, flags), then
// builds the logger and loads the schema.
func (t *tool) setup(c *cli.Context) error {
	src := conf.DefaultSource()
	if c.IsSet("config") {
		path := c.String("config")
		if _, err := os.Stat(path); err != nil {
			return cli.Exit(fmt.Sprintf("cannot read configuration: %v", err), exitUsage)
		}
		src = conf.ForPath(path)
	}
	cfg, err := src.Read()
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if err := cfg.ApplyEnviron(t.environ); err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	if c.IsSet("log-level") {
		level, err := conf.ParseLogLevel(c.String("log-level"))
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cfg.LogLevel = level
	}
	if c.IsSet("schema") {
		cfg.Schema = c.String("schema")
	}
	if c.IsSet("platform-version") {
		cfg.PlatformVersion = c.String("platform-version")
	}
	if c.IsSet("ci") {
		cfg.CI = c.Bool("ci")
	}
	if c.IsSet("strict") {
		cfg.Strict = c.Bool("strict")
	}
	t.cfg = cfg

	t.logger = slog.New(slog.NewTextHandler(t.stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if cfg.PlatformVersion != "" {
		v, err := semver.NewVersion(cfg.PlatformVersion)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid platform version '%s': %v", cfg.PlatformVersion, err), exitUsage)
		}
		t.version = v
	}

	t.schema = schema.Builtin()
	if cfg.Schema != "" {
		s, err := schema.LoadSchemaFromPath(cfg.Schema, t.schema)
		if err != nil {
			return cli.Exit(err.Error(), exitLoad)
		}
		t.schema = s
	}
	t.registry = role.Builtin()

	t.logger.Debug("configured",
		"schema_keys", len(t.schema.Keys),
		"platform_version", cfg.PlatformVersion,
		"syntax", cfg.Syntax,
		"strict", cfg.Strict,
		"ci", cfg.CI,
	)
	return nil
}

// resolver returns a resolver for the configured schema. version, when
// non-nil, enables the compatibility rules.
func (t *tool) resolver(version *semver.Version) *resolver.Resolver {
	var opts []validator.Option
	if version != nil {
		opts = append(opts, validator.WithPlatformVersion(version))
	}
	return resolver.New(t.registry, t.schema, validator.New(t.schema, opts...), resolver.WithLogger(t.logger))
}

// syntax returns the output syntax: the command flag when set, then
// fallback, then the configured default.
func (t *tool) syntax(c *cli.Context, fallback string) (render.Syntax, error) {
	name := t.cfg.Syntax
	if fallback != "" {
		name = fallback
	}
	if c.IsSet("syntax") {
		name = c.String("syntax")
	}
	s, err := render.ParseSyntax(name)
	if err != nil {
		return "", cli.Exit(err.Error(), exitUsage)
	}
	return s, nil
}

// exitCode maps a pipeline error to the exit code reported for it.
func exitCode(err error) int {
	var (
		unknown  *role.UnknownRoleError
		invalid  *validator.ValidationError
		typeErr  *render.UnsupportedValueTypeError
		conflict *render.PathConflictError
		badKey   *render.InvalidKeyError
	)
	switch {
	case errors.As(err, &unknown):
		return exitUnknownRole
	case errors.As(err, &invalid):
		return exitValidation
	case errors.As(err, &typeErr), errors.As(err, &conflict), errors.As(err, &badKey):
		return exitRender
	case errors.Is(err, resolver.ErrIncompatiblePeer):
		return exitUsage
	}
	return exitLoad
}
