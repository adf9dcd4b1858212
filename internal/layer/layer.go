// Package layer loads configuration layers from gitlab.rb, TOML, YAML and
// JSON files and from the environment.
package layer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"topo/internal/merge"
	"topo/internal/render"
	"topo/internal/schema"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Loader turns documents into layers keyed by normalized path. Values are
// coerced to the declared type of their key; when coercion fails the raw
// value is kept so the validator can report it.
type Loader struct {
	schema *schema.Schema
	logger *slog.Logger
}

// NewLoader returns a loader for s. A nil logger discards log output.
func NewLoader(s *schema.Schema, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{schema: s, logger: logger}
}

// Load reads the layer file at path. The syntax is chosen by extension.
func (l *Loader) Load(path string) (merge.Layer, error) {
	syntax, ok := render.ForPath(path)
	if !ok {
		return nil, fmt.Errorf("failed to load %s: unrecognised file extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layer file: %w", err)
	}
	layer, err := l.Parse(data, syntax, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return layer, nil
}

// Parse decodes data written in syntax. name is used in log and error
// messages.
func (l *Loader) Parse(data []byte, syntax render.Syntax, name string) (merge.Layer, error) {
	if syntax == render.Omnibus {
		stmts, err := ParseOmnibus(data, name)
		if err != nil {
			return nil, err
		}
		out := merge.Layer{}
		for _, st := range stmts {
			path, err := schema.NormalizePath(st.Path)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", name, st.Line, err)
			}
			out[path] = l.coerce(path, schema.FromAny(st.Value))
		}
		return out, nil
	}

	doc := map[string]any{}
	switch syntax {
	case render.YAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case render.TOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
	case render.JSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w '%s'", render.ErrUnknownSyntax, syntax)
	}
	return l.Flatten(doc), nil
}

// Flatten turns a nested document into dotted paths. Descent stops at keys
// the schema declares, so map-typed keys keep their value whole; tables
// that lead to no declared key are flattened to their leaves.
func (l *Loader) Flatten(doc map[string]any) merge.Layer {
	out := merge.Layer{}
	l.flatten("", doc, out)
	return out
}

func (l *Loader) flatten(prefix string, doc map[string]any, out merge.Layer) {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if p, err := schema.NormalizePath(path); err == nil {
			path = p
		}

		x := doc[k]
		if sub, ok := asTable(x); ok && !l.schema.Known(path) && len(sub) > 0 {
			l.flatten(path, sub, out)
			continue
		}
		out[path] = l.coerce(path, schema.FromAny(x))
	}
}

func asTable(x any) (map[string]any, bool) {
	switch t := x.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, v := range t {
			m[fmt.Sprint(k)] = v
		}
		return m, true
	}
	return nil, false
}

func (l *Loader) coerce(path string, v schema.Value) schema.Value {
	cv, err := l.schema.CoerceAt(path, v)
	if err != nil {
		l.logger.Debug("keeping uncoerced value", "key", path, "error", err)
		return v
	}
	return cv
}

// LoadAll loads each file in order and overlays them into one layer. Later
// files win for the same path.
func (l *Loader) LoadAll(paths []string) (merge.Layer, error) {
	out := merge.Layer{}
	for _, p := range paths {
		layer, err := l.Load(p)
		if err != nil {
			return nil, err
		}
		for k, v := range layer {
			out[k] = v
		}
		l.logger.Debug("loaded layer", "file", p, "keys", len(layer))
	}
	return out, nil
}

// Describe returns a short summary of a layer for log output.
func Describe(l merge.Layer) string {
	ns := map[string]int{}
	for k := range l {
		ns[schema.Namespace(k)]++
	}
	names := make([]string, 0, len(ns))
	for n := range ns {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%d", n, ns[n])
	}
	return strings.Join(parts, " ")
}
