// Package render writes a merged configuration in one of the supported
// syntaxes. Output is deterministic: keys are emitted in lexicographic
// order and rerunning Render on the same config yields identical bytes.
package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"topo/internal/merge"
	"topo/internal/schema"
)

// Syntax names an output format.
type Syntax string

const (
	Omnibus Syntax = "omnibus"
	TOML    Syntax = "toml"
	YAML    Syntax = "yaml"
	JSON    Syntax = "json"
)

// ErrUnknownSyntax is returned for syntax names Render does not support.
var ErrUnknownSyntax = errors.New("unknown syntax")

var extensions = map[Syntax]string{
	Omnibus: ".rb",
	TOML:    ".toml",
	YAML:    ".yaml",
	JSON:    ".json",
}

// Syntaxes returns the supported syntaxes.
func Syntaxes() []Syntax {
	return []Syntax{Omnibus, TOML, YAML, JSON}
}

// SyntaxNames returns the supported syntax names joined for usage text.
func SyntaxNames() string {
	names := make([]string, 0, len(extensions))
	for _, s := range Syntaxes() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// ParseSyntax parses a syntax name. "rb" is accepted for omnibus and "yml"
// for yaml.
func ParseSyntax(name string) (Syntax, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "omnibus", "rb", "ruby":
		return Omnibus, nil
	case "toml":
		return TOML, nil
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("%w '%s' (supported: %s)", ErrUnknownSyntax, name, SyntaxNames())
}

// Ext returns the file extension, including the dot, for s.
func (s Syntax) Ext() string { return extensions[s] }

// ForPath returns the syntax implied by a file name's extension.
func ForPath(path string) (Syntax, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yml" {
		return YAML, true
	}
	for s, e := range extensions {
		if e == ext {
			return s, true
		}
	}
	return "", false
}

// UnsupportedValueTypeError reports a value the target syntax cannot
// represent.
type UnsupportedValueTypeError struct {
	Key    string
	Type   schema.ValueType
	Syntax Syntax
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("cannot render %s: %s values are not supported by %s", e.Key, e.Type, e.Syntax)
}

// PathConflictError reports a key that cannot be nested because a
// non-table value already occupies Prefix.
type PathConflictError struct {
	Key    string
	Prefix string
}

func (e *PathConflictError) Error() string {
	if e.Key == e.Prefix {
		return fmt.Sprintf("cannot render %s: conflicting values for the same key", e.Key)
	}
	return fmt.Sprintf("cannot render %s: %s already holds a non-table value", e.Key, e.Prefix)
}

// InvalidKeyError reports a key that cannot be written as a gitlab.rb
// identifier.
type InvalidKeyError struct {
	Key     string
	Segment string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cannot render %q: %q is not a valid gitlab.rb setting name", e.Key, e.Segment)
}

// Render writes cfg in the given syntax. On error no output is returned.
func Render(cfg *merge.Config, syntax Syntax) ([]byte, error) {
	switch syntax {
	case Omnibus:
		return renderOmnibus(cfg)
	case TOML:
		return renderTOML(cfg)
	case YAML:
		return renderYAML(cfg)
	case JSON:
		return renderJSON(cfg)
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownSyntax, syntax)
}

// durationUnit returns the unit a duration at path is expressed in.
func durationUnit(cfg *merge.Config, path string) int64 {
	if s := cfg.Schema(); s != nil {
		if k, ok := s.Lookup(path); ok {
			return int64(k.DurationUnit())
		}
	}
	return int64(schema.ConfigKey{}.DurationUnit())
}
