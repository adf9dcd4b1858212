package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"topo/internal/merge"
	"topo/internal/schema"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// buildTree expands dotted paths into nested maps. A map value and deeper
// keys under the same path fold into one table.
func buildTree(cfg *merge.Config, syntax Syntax) (map[string]any, error) {
	root := map[string]any{}
	for _, path := range cfg.Keys() {
		v, _ := cfg.Get(path)
		leaf, err := treeValue(v, syntax)
		if err != nil {
			err.Key = path
			return nil, err
		}

		segs := schema.SplitPath(path)
		node := root
		for i, seg := range segs[:len(segs)-1] {
			next, ok := node[seg]
			if !ok {
				m := map[string]any{}
				node[seg] = m
				node = m
				continue
			}
			m, ok := next.(map[string]any)
			if !ok {
				return nil, &PathConflictError{Key: path, Prefix: schema.JoinPath(segs[:i+1]...)}
			}
			node = m
		}
		if err := place(node, segs[len(segs)-1], leaf, path); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func place(node map[string]any, k string, v any, path string) error {
	existing, ok := node[k]
	if !ok {
		node[k] = v
		return nil
	}
	em, eok := existing.(map[string]any)
	vm, vok := v.(map[string]any)
	if !eok || !vok {
		return &PathConflictError{Key: path, Prefix: path}
	}
	keys := make([]string, 0, len(vm))
	for kk := range vm {
		keys = append(keys, kk)
	}
	sort.Strings(keys)
	for _, kk := range keys {
		if err := place(em, kk, vm[kk], path+"."+kk); err != nil {
			return err
		}
	}
	return nil
}

// treeValue converts v for a tree syntax. Opaque values survive only in
// YAML and JSON; TOML has no null.
func treeValue(v schema.Value, syntax Syntax) (any, *UnsupportedValueTypeError) {
	switch v.Type() {
	case schema.TypeBool:
		return v.AsBool(), nil
	case schema.TypeInt:
		return v.AsInt(), nil
	case schema.TypeString:
		return v.AsString(), nil
	case schema.TypeDuration:
		return v.AsDuration().String(), nil
	case schema.TypeNull:
		if syntax == TOML {
			break
		}
		return nil, nil
	case schema.TypeOpaque:
		if syntax == TOML {
			break
		}
		return v.Raw(), nil
	case schema.TypeList:
		items := v.Items()
		out := make([]any, len(items))
		for i, it := range items {
			x, err := treeValue(it, syntax)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case schema.TypeMap:
		entries := v.Entries()
		out := make(map[string]any, len(entries))
		for k, e := range entries {
			x, err := treeValue(e, syntax)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	return nil, &UnsupportedValueTypeError{Type: v.Type(), Syntax: syntax}
}

func renderTOML(cfg *merge.Config) ([]byte, error) {
	tree, err := buildTree(cfg, TOML)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("failed to encode TOML: %w", err)
	}
	return buf.Bytes(), nil
}

func renderJSON(cfg *merge.Config) ([]byte, error) {
	tree, err := buildTree(cfg, JSON)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

func renderYAML(cfg *merge.Config) ([]byte, error) {
	tree, err := buildTree(cfg, YAML)
	if err != nil {
		return nil, err
	}
	node, err := yamlNode(tree)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// yamlNode builds the document node by hand so mapping keys are sorted and
// strings are always double-quoted.
func yamlNode(x any) (*yaml.Node, error) {
	switch t := x.(type) {
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if len(t) == 0 {
			n.Style = yaml.FlowStyle
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, err := yamlNode(t[k])
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(t) == 0 {
			n.Style = yaml.FlowStyle
		}
		for _, e := range t {
			child, err := yamlNode(e)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t, Style: yaml.DoubleQuotedStyle}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(t, 10)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(x); err != nil {
		return nil, fmt.Errorf("failed to encode YAML value: %w", err)
	}
	return n, nil
}
