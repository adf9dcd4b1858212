// Package merge combines the default, role and user layers of a node's
// configuration into one flat, immutable view.
package merge

import (
	"sort"

	"topo/internal/schema"
)

// Layer maps key paths to values. Paths may be dotted or bracketed.
type Layer map[string]schema.Value

// LayerKind identifies the source of a merged value. Higher kinds win.
type LayerKind int

const (
	LayerNone LayerKind = iota
	LayerDefault
	LayerRole
	LayerUser
)

func (k LayerKind) String() string {
	switch k {
	case LayerDefault:
		return "default"
	case LayerRole:
		return "role"
	case LayerUser:
		return "user"
	}
	return "none"
}

// Config is the merged view of a node's configuration. It is immutable;
// accessors return copies.
type Config struct {
	schema *schema.Schema
	values map[string]schema.Value
	origin map[string]LayerKind
	keys   []string
}

// Merge overlays defaults, role and user in that order. The highest layer
// setting a path wins, except for MergeNested keys whose maps merge
// recursively and whose lists are unioned. Merge never fails: paths that do
// not normalize pass through verbatim.
func Merge(s *schema.Schema, defaults, role, user Layer) *Config {
	c := &Config{
		schema: s,
		values: make(map[string]schema.Value),
		origin: make(map[string]LayerKind),
	}

	for _, l := range []struct {
		kind  LayerKind
		layer Layer
	}{
		{LayerDefault, defaults},
		{LayerRole, role},
		{LayerUser, user},
	} {
		for path, v := range normalize(l.layer) {
			if prev, ok := c.values[path]; ok && nestedKey(s, path) {
				v = combine(prev, v)
			}
			c.values[path] = v
			c.origin[path] = l.kind
		}
	}

	c.keys = make([]string, 0, len(c.values))
	for p := range c.values {
		c.keys = append(c.keys, p)
	}
	sort.Strings(c.keys)
	return c
}

// normalize rewrites a layer to dotted paths. Raw keys are visited in sorted
// order so that when two spellings collide the lexicographically last wins.
func normalize(l Layer) map[string]schema.Value {
	raw := make([]string, 0, len(l))
	for k := range l {
		raw = append(raw, k)
	}
	sort.Strings(raw)

	out := make(map[string]schema.Value, len(l))
	for _, k := range raw {
		p, err := schema.NormalizePath(k)
		if err != nil {
			p = k
		}
		out[p] = l[k]
	}
	return out
}

func nestedKey(s *schema.Schema, path string) bool {
	k, ok := s.Lookup(path)
	return ok && k.MergeNested
}

// combine merges b over a. Maps merge key by key, recursing into nested
// maps; lists append the items of b not already in a. Any other pairing is
// a plain override.
func combine(a, b schema.Value) schema.Value {
	switch {
	case a.Type() == schema.TypeMap && b.Type() == schema.TypeMap:
		out := a.Entries()
		for k, bv := range b.Entries() {
			if av, ok := out[k]; ok && av.Type() == schema.TypeMap && bv.Type() == schema.TypeMap {
				out[k] = combine(av, bv)
				continue
			}
			out[k] = bv
		}
		return schema.Map(out)

	case a.Type() == schema.TypeList && b.Type() == schema.TypeList:
		out := a.Items()
	next:
		for _, bv := range b.Items() {
			for _, av := range out {
				if av.Equal(bv) {
					continue next
				}
			}
			out = append(out, bv)
		}
		return schema.List(out...)
	}
	return b
}

// Get returns the merged value at path.
func (c *Config) Get(path string) (schema.Value, bool) {
	v, ok := c.values[path]
	return v, ok
}

// Has reports whether path holds a value.
func (c *Config) Has(path string) bool {
	_, ok := c.values[path]
	return ok
}

// Keys returns every merged path in lexicographic order.
func (c *Config) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Len returns the number of merged paths.
func (c *Config) Len() int { return len(c.keys) }

// Origin returns the layer that supplied path, LayerNone when absent.
func (c *Config) Origin(path string) LayerKind { return c.origin[path] }

// Values returns a copy of the merged map.
func (c *Config) Values() map[string]schema.Value {
	out := make(map[string]schema.Value, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Layer returns the merged paths that were supplied by kind.
func (c *Config) Layer(kind LayerKind) Layer {
	out := Layer{}
	for k, v := range c.values {
		if c.origin[k] == kind {
			out[k] = v
		}
	}
	return out
}

// Schema returns the schema the config was merged against.
func (c *Config) Schema() *schema.Schema { return c.schema }

// Texts returns the canonical text of every merged value, the form
// invariants compare. Entries of map values are also reachable by their
// dotted paths unless a merged key already occupies that path.
func (c *Config) Texts() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v.Text()
	}
	var walk func(prefix string, v schema.Value)
	walk = func(prefix string, v schema.Value) {
		for _, k := range v.MapKeys() {
			e := v.Entries()[k]
			p := prefix + "." + k
			if _, taken := c.values[p]; !taken {
				out[p] = e.Text()
			}
			if e.Type() == schema.TypeMap {
				walk(p, e)
			}
		}
	}
	for _, k := range c.keys {
		if v := c.values[k]; v.Type() == schema.TypeMap {
			walk(k, v)
		}
	}
	return out
}
