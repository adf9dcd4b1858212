package conf

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed defaults.toml
var defaultConfig string

const (
	DefaultPath      = "/etc/topo/config.toml"
	DefaultDropInDir = "/etc/topo/config.toml.d/"
)

// Config is the resolved tool configuration.
type Config struct {
	LogLevel        slog.Level
	Syntax          string
	PlatformVersion string
	Schema          string
	Strict          bool
	CI              bool
}

// ConfigSource defines the paths configuration is read from.
type ConfigSource struct {
	Path      string
	DropInDir string
}

// DefaultSource returns the system-wide configuration locations.
func DefaultSource() *ConfigSource {
	return &ConfigSource{Path: DefaultPath, DropInDir: DefaultDropInDir}
}

// ForPath returns a source reading path and its ".d" drop-in directory.
func ForPath(path string) *ConfigSource {
	return &ConfigSource{Path: path, DropInDir: path + ".d"}
}

// ParseLogLevel maps a level name to a slog level. Matching ignores case.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", s)
}

// Update applies the values the DTO sets.
func (c *Config) Update(dto configDTO) error {
	if dto.LogLevel != nil {
		level, err := ParseLogLevel(*dto.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = level
	}
	if dto.Syntax != nil {
		c.Syntax = *dto.Syntax
	}
	if dto.PlatformVersion != nil {
		c.PlatformVersion = *dto.PlatformVersion
	}
	if dto.Schema != nil {
		c.Schema = *dto.Schema
	}
	if dto.Strict != nil {
		c.Strict = *dto.Strict
	}
	if dto.CI != nil {
		c.CI = *dto.CI
	}
	return nil
}

// Read loads and returns the complete Config by merging all layers:
// 1. Embedded defaults
// 2. Main configuration file
// 3. Drop-in files
func (cs *ConfigSource) Read() (Config, error) {
	resolved := Config{}

	dto, err := parseConfigDTO(defaultConfig)
	if err != nil {
		return resolved, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	if err := resolved.Update(dto); err != nil {
		return resolved, fmt.Errorf("embedded defaults: %w", err)
	}

	// A missing main file is fine, a malformed one is not.
	data, err := os.ReadFile(cs.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return resolved, fmt.Errorf("failed to load %s: %w", cs.Path, err)
		}
	} else {
		mainDTO, err := parseConfigDTO(string(data))
		if err != nil {
			return resolved, fmt.Errorf("failed to parse %s: %w", cs.Path, err)
		}
		if err := resolved.Update(mainDTO); err != nil {
			return resolved, fmt.Errorf("%s: %w", cs.Path, err)
		}
	}

	paths, err := cs.findDropInFiles()
	if err != nil {
		return resolved, err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return resolved, fmt.Errorf("failed to load %s: %w", path, err)
		}
		dropIn, err := parseConfigDTO(string(data))
		if err != nil {
			return resolved, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := resolved.Update(dropIn); err != nil {
			return resolved, fmt.Errorf("%s: %w", path, err)
		}
	}

	return resolved, nil
}

// Environment variables read by ApplyEnviron.
const (
	EnvLogLevel        = "TOPO_LOG_LEVEL"
	EnvSyntax          = "TOPO_SYNTAX"
	EnvPlatformVersion = "TOPO_PLATFORM_VERSION"
	EnvSchema          = "TOPO_SCHEMA"
	EnvStrict          = "TOPO_STRICT"
	EnvCI              = "TOPO_CI"
)

// ApplyEnviron overlays the TOPO_* variables of environ. A generic CI=true
// also enables CI output. Later duplicates win.
func (c *Config) ApplyEnviron(environ []string) error {
	var dto configDTO
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch name {
		case EnvLogLevel:
			dto.LogLevel = &value
		case EnvSyntax:
			dto.Syntax = &value
		case EnvPlatformVersion:
			dto.PlatformVersion = &value
		case EnvSchema:
			dto.Schema = &value
		case EnvStrict:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvStrict, err)
			}
			dto.Strict = &b
		case EnvCI, "CI":
			b, err := strconv.ParseBool(value)
			if err != nil {
				if name == "CI" {
					continue
				}
				return fmt.Errorf("%s: %w", EnvCI, err)
			}
			if name == "CI" && !b {
				continue
			}
			dto.CI = &b
		}
	}
	return c.Update(dto)
}

type configDTO struct {
	LogLevel        *string `toml:"log-level"`
	Syntax          *string `toml:"syntax"`
	PlatformVersion *string `toml:"platform-version"`
	Schema          *string `toml:"schema"`
	Strict          *bool   `toml:"strict"`
	CI              *bool   `toml:"ci"`
}

// parseConfigDTO parses a TOML string into a configDTO. Unknown keys are
// rejected.
func parseConfigDTO(data string) (configDTO, error) {
	var dto configDTO

	md, err := toml.Decode(data, &dto)
	if err != nil {
		return dto, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return dto, fmt.Errorf("unknown key(s): %s", strings.Join(keys, ", "))
	}

	return dto, nil
}

// findDropInFiles returns the sorted *.toml files of the drop-in directory.
// A missing directory yields nil.
func (cs *ConfigSource) findDropInFiles() ([]string, error) {
	if cs.DropInDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(cs.DropInDir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(cs.DropInDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read drop-in directory %s: %w", cs.DropInDir, err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".toml") {
			filenames = append(filenames, filepath.Join(cs.DropInDir, entry.Name()))
		}
	}
	sort.Strings(filenames)

	return filenames, nil
}
