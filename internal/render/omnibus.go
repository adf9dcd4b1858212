package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"topo/internal/merge"
	"topo/internal/schema"
)

// rubyIdent matches the receiver or method name a gitlab.rb line starts
// with.
var rubyIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// renderOmnibus writes the gitlab.rb form. Top-level keys become method
// calls and deeper keys indexed assignments; a blank line separates
// namespaces.
func renderOmnibus(cfg *merge.Config) ([]byte, error) {
	var sb strings.Builder
	prevNS := ""
	for i, path := range cfg.Keys() {
		v, _ := cfg.Get(path)
		text, err := omnibusValue(v, durationUnit(cfg, path), 0)
		if err != nil {
			err.Key = path
			return nil, err
		}

		segs := schema.SplitPath(path)
		if ns := schema.Namespace(path); !rubyIdent.MatchString(ns) {
			return nil, &InvalidKeyError{Key: path, Segment: ns}
		}
		if ns := segs[0]; i > 0 && ns != prevNS {
			sb.WriteString("\n")
		}
		prevNS = segs[0]

		if len(segs) == 1 {
			switch v.Type() {
			case schema.TypeMap:
				fmt.Fprintf(&sb, "%s(%s)\n", path, text)
			default:
				fmt.Fprintf(&sb, "%s %s\n", path, text)
			}
			continue
		}

		sb.WriteString(segs[0])
		for _, seg := range segs[1:] {
			sb.WriteString("['")
			sb.WriteString(strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(seg))
			sb.WriteString("']")
		}
		sb.WriteString(" = ")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

// omnibusValue formats v as a Ruby literal. Durations are written as
// integers counted in unit nanoseconds.
func omnibusValue(v schema.Value, unit int64, depth int) (string, *UnsupportedValueTypeError) {
	switch v.Type() {
	case schema.TypeBool:
		return strconv.FormatBool(v.AsBool()), nil
	case schema.TypeInt:
		return strconv.FormatInt(v.AsInt(), 10), nil
	case schema.TypeString:
		return Quote(v.AsString()), nil
	case schema.TypeDuration:
		return strconv.FormatInt(int64(v.AsDuration())/unit, 10), nil
	case schema.TypeNull:
		return "nil", nil
	case schema.TypeList:
		items := v.Items()
		parts := make([]string, len(items))
		for i, it := range items {
			s, err := omnibusValue(it, unit, depth)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case schema.TypeMap:
		keys := v.MapKeys()
		if len(keys) == 0 {
			return "{}", nil
		}
		entries := v.Entries()
		indent := strings.Repeat("  ", depth+1)
		var sb strings.Builder
		sb.WriteString("{\n")
		for _, k := range keys {
			s, err := omnibusValue(entries[k], unit, depth+1)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, "%s%s => %s,\n", indent, Quote(k), s)
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("}")
		return sb.String(), nil
	}
	return "", &UnsupportedValueTypeError{Type: v.Type(), Syntax: Omnibus}
}

// Quote returns s as a double-quoted Ruby string literal. Backslashes,
// quotes, '#' and control characters are escaped so the literal never
// interpolates.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"', '#':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, c)
				continue
			}
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
