package schema

import (
	"sort"
	"strings"
	"time"

	"topo/internal/invariant"
)

// ValueType is the type tag of a configuration value.
type ValueType string

// Declarable types. A ConfigKey may only use these.
const (
	TypeBool     ValueType = "boolean"
	TypeInt      ValueType = "integer"
	TypeString   ValueType = "string"
	TypeDuration ValueType = "duration"
	TypeList     ValueType = "list"
	TypeMap      ValueType = "map"
)

// Pass-through tags produced by decoding; keys cannot declare them.
const (
	TypeNull   ValueType = "null"
	TypeOpaque ValueType = "opaque"
)

// Declarable reports whether t belongs to the closed set keys may declare.
func (t ValueType) Declarable() bool {
	switch t {
	case TypeBool, TypeInt, TypeString, TypeDuration, TypeList, TypeMap:
		return true
	}
	return false
}

// ConfigKey describes a single configuration setting.
type ConfigKey struct {
	Path        string        // e.g., "gitlab_rails.db_host"
	Type        ValueType     // declared type
	Values      []string      // enumerated domain, string keys only
	Default     Value         // invalid when the key has no default
	MergeNested bool          // combine sub-values across layers
	Secret      bool          // never printed
	Unit        time.Duration // integer unit of a duration key
	Since       string        // first platform version supporting the key
	Until       string        // platform version that removed the key
	Description string
}

// HasDefault reports whether the key declares a default.
func (k ConfigKey) HasDefault() bool { return k.Default.IsValid() }

// DurationUnit returns the key's duration unit, seconds when unset.
func (k ConfigKey) DurationUnit() time.Duration {
	if k.Unit <= 0 {
		return time.Second
	}
	return k.Unit
}

// Reference declares that an anchor key pointing at another service must be
// accompanied by its companion keys.
type Reference struct {
	Anchor     string
	Companions []string
}

// Schema is the full set of known keys, reference sets and invariants.
type Schema struct {
	Keys       map[string]ConfigKey
	References []Reference
	Invariants []invariant.Invariant
}

// Lookup returns the key declared at exactly path.
func (s *Schema) Lookup(path string) (ConfigKey, bool) {
	if s == nil {
		return ConfigKey{}, false
	}
	k, ok := s.Keys[path]
	return k, ok
}

// Known reports whether path is declared, or lies beneath a map-typed key.
func (s *Schema) Known(path string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.Keys[path]; ok {
		return true
	}
	_, ok := s.MapAncestor(path)
	return ok
}

// MapAncestor returns the nearest map-typed key that is a strict prefix of path.
func (s *Schema) MapAncestor(path string) (ConfigKey, bool) {
	if s == nil {
		return ConfigKey{}, false
	}
	segs := SplitPath(path)
	for i := len(segs) - 1; i > 0; i-- {
		if k, ok := s.Keys[JoinPath(segs[:i]...)]; ok && k.Type == TypeMap {
			return k, true
		}
	}
	return ConfigKey{}, false
}

// IsDefault reports whether v equals the declared default of path.
// Keys without a default never match.
func (s *Schema) IsDefault(path string, v Value) bool {
	k, ok := s.Lookup(path)
	if !ok || !k.HasDefault() {
		return false
	}
	return k.Default.Equal(v)
}

// Paths returns every declared path in lexicographic order.
func (s *Schema) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.Keys))
	for p := range s.Keys {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Services returns the namespaces that declare an "enable" flag.
func (s *Schema) Services() []string {
	var out []string
	for _, p := range s.Paths() {
		if ns, ok := strings.CutSuffix(p, ".enable"); ok && !strings.Contains(ns, ".") {
			out = append(out, ns)
		}
	}
	return out
}

// Clone returns a copy that can be extended without touching s.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		Keys:       make(map[string]ConfigKey, len(s.Keys)),
		References: append([]Reference(nil), s.References...),
		Invariants: append([]invariant.Invariant(nil), s.Invariants...),
	}
	for p, k := range s.Keys {
		c.Keys[p] = k
	}
	return c
}
