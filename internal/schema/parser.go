package schema

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"time"

	"topo/internal/invariant"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// schemaFile is the YAML structure of a schema extension file.
type schemaFile struct {
	Config     map[string]configEntry `yaml:"config"`
	References []referenceEntry       `yaml:"references,omitempty"`
	Invariants []invariantEntry       `yaml:"invariants,omitempty"`
}

type configEntry struct {
	Type        string   `yaml:"type"`
	Values      []string `yaml:"values,omitempty"`
	Default     any      `yaml:"default,omitempty"`
	MergeNested bool     `yaml:"merge_nested,omitempty"`
	Secret      bool     `yaml:"secret,omitempty"`
	Unit        string   `yaml:"unit,omitempty"`
	Since       string   `yaml:"since,omitempty"`
	Until       string   `yaml:"until,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

type referenceEntry struct {
	Anchor     string   `yaml:"anchor"`
	Companions []string `yaml:"companions"`
}

type invariantEntry struct {
	Name string `yaml:"name"`
	Rule string `yaml:"rule"`
}

// invariantNameRegex validates invariant names: alphanumeric, hyphens, underscores
var invariantNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var durationUnits = map[string]time.Duration{
	"ms":  time.Millisecond,
	"s":   time.Second,
	"min": time.Minute,
	"h":   time.Hour,
}

// ParseSchema parses a YAML schema extension on top of base. Keys in the
// file replace base keys with the same path. base is never modified; a nil
// base starts from an empty schema.
func ParseSchema(content []byte, base *Schema) (*Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(content, &sf); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	s := &Schema{Keys: map[string]ConfigKey{}}
	if base != nil {
		s = base.Clone()
	}

	// Sorted so the first reported error does not depend on map order.
	paths := make([]string, 0, len(sf.Config))
	for p := range sf.Config {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, raw := range paths {
		k, err := parseEntry(raw, sf.Config[raw])
		if err != nil {
			return nil, err
		}
		s.Keys[k.Path] = k
	}

	for i, r := range sf.References {
		anchor, err := NormalizePath(r.Anchor)
		if err != nil {
			return nil, fmt.Errorf("reference at index %d: %w", i, err)
		}
		if !s.Known(anchor) {
			return nil, fmt.Errorf("reference at index %d: undefined anchor '%s'", i, anchor)
		}
		if len(r.Companions) == 0 {
			return nil, fmt.Errorf("reference '%s': missing required field 'companions'", anchor)
		}
		ref := Reference{Anchor: anchor}
		for _, c := range r.Companions {
			cp, err := NormalizePath(c)
			if err != nil {
				return nil, fmt.Errorf("reference '%s': %w", anchor, err)
			}
			if !s.Known(cp) {
				return nil, fmt.Errorf("reference '%s': undefined companion '%s'", anchor, cp)
			}
			ref.Companions = append(ref.Companions, cp)
		}
		s.References = append(s.References, ref)
	}

	seenNames := make(map[string]bool)
	for _, inv := range s.Invariants {
		seenNames[inv.Name] = true
	}

	for i, inv := range sf.Invariants {
		if inv.Name == "" {
			return nil, fmt.Errorf("invariant at index %d: missing required field 'name'", i)
		}
		if !invariantNameRegex.MatchString(inv.Name) {
			return nil, fmt.Errorf("invariant name '%s' contains invalid characters", inv.Name)
		}
		if seenNames[inv.Name] {
			return nil, fmt.Errorf("duplicate invariant name: '%s'", inv.Name)
		}
		seenNames[inv.Name] = true

		if inv.Rule == "" {
			return nil, fmt.Errorf("invariant '%s': missing required field 'rule'", inv.Name)
		}

		expr, err := invariant.ParseRule(inv.Rule, s.Known)
		if err != nil {
			return nil, fmt.Errorf("invariant '%s': invalid rule: %w", inv.Name, err)
		}

		s.Invariants = append(s.Invariants, invariant.Invariant{
			Name: inv.Name,
			Rule: inv.Rule,
			Expr: expr,
		})
	}

	return s, nil
}

func parseEntry(raw string, e configEntry) (ConfigKey, error) {
	path, err := NormalizePath(raw)
	if err != nil {
		return ConfigKey{}, fmt.Errorf("config '%s': %w", raw, err)
	}

	k := ConfigKey{
		Path:        path,
		Type:        ValueType(e.Type),
		Values:      e.Values,
		MergeNested: e.MergeNested,
		Secret:      e.Secret,
		Since:       e.Since,
		Until:       e.Until,
		Description: e.Description,
	}

	if !k.Type.Declarable() {
		return ConfigKey{}, fmt.Errorf("unknown type '%s' for config '%s'", e.Type, path)
	}
	if len(k.Values) > 0 && k.Type != TypeString {
		return ConfigKey{}, fmt.Errorf("config '%s': 'values' requires type string", path)
	}
	if k.MergeNested && k.Type != TypeMap && k.Type != TypeList {
		return ConfigKey{}, fmt.Errorf("config '%s': merge_nested requires type map or list", path)
	}

	if e.Unit != "" {
		if k.Type != TypeDuration {
			return ConfigKey{}, fmt.Errorf("config '%s': 'unit' requires type duration", path)
		}
		u, ok := durationUnits[e.Unit]
		if !ok {
			return ConfigKey{}, fmt.Errorf("config '%s': unknown unit '%s'", path, e.Unit)
		}
		k.Unit = u
	}

	var since, until *semver.Version
	if k.Since != "" {
		if since, err = semver.NewVersion(k.Since); err != nil {
			return ConfigKey{}, fmt.Errorf("config '%s': invalid since version: %w", path, err)
		}
	}
	if k.Until != "" {
		if until, err = semver.NewVersion(k.Until); err != nil {
			return ConfigKey{}, fmt.Errorf("config '%s': invalid until version: %w", path, err)
		}
	}
	if since != nil && until != nil && !since.LessThan(until) {
		return ConfigKey{}, fmt.Errorf("config '%s': since %s is not before until %s", path, k.Since, k.Until)
	}

	if e.Default != nil {
		d, err := Coerce(k, FromAny(e.Default))
		if err != nil {
			return ConfigKey{}, fmt.Errorf("config '%s': invalid default: %w", path, err)
		}
		if !inDomain(k, d) {
			return ConfigKey{}, fmt.Errorf("config '%s': default %q is not one of the allowed values", path, d.Text())
		}
		k.Default = d
	}

	return k, nil
}

// InDomain reports whether v is allowed by the key's enumeration. Keys
// without an enumeration accept everything.
func (k ConfigKey) InDomain(v Value) bool { return inDomain(k, v) }

func inDomain(k ConfigKey, v Value) bool {
	if len(k.Values) == 0 || v.Type() != TypeString {
		return true
	}
	for _, allowed := range k.Values {
		if allowed == v.AsString() {
			return true
		}
	}
	return false
}

// LoadSchemaFromPath reads a schema extension file and applies it to base.
func LoadSchemaFromPath(path string, base *Schema) (*Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return ParseSchema(content, base)
}
