// Package validator checks a merged configuration against the schema, the
// node's role and, when one is supplied, the paired node's configuration.
// Every rule runs; findings are collected rather than returned one by one.
package validator

import (
	"fmt"

	"topo/internal/merge"
	"topo/internal/role"
	"topo/internal/schema"

	"github.com/Masterminds/semver/v3"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Class groups rules by the kind of problem they detect.
type Class string

const (
	ClassSchema        Class = "schema"
	ClassPresence      Class = "presence"
	ClassExclusion     Class = "exclusion"
	ClassDeadConfig    Class = "dead-config"
	ClassReferential   Class = "referential"
	ClassPairing       Class = "pairing"
	ClassCompatibility Class = "compatibility"
	ClassInvariant     Class = "invariant"
)

// Finding is one problem detected in a configuration.
type Finding struct {
	Rule     string   `json:"rule"`
	Class    Class    `json:"class"`
	Severity Severity `json:"severity"`
	Key      string   `json:"key"`
	Related  []string `json:"related,omitempty"`
	Message  string   `json:"message"`
}

// Rule is a single validation check.
type Rule interface {
	ID() string
	Class() Class
	Check(c *Context)
}

// NewRule adapts a function to the Rule interface.
func NewRule(id string, class Class, check func(c *Context)) Rule {
	return funcRule{id: id, class: class, check: check}
}

type funcRule struct {
	id    string
	class Class
	check func(c *Context)
}

func (r funcRule) ID() string       { return r.id }
func (r funcRule) Class() Class     { return r.class }
func (r funcRule) Check(c *Context) { r.check(c) }

// Context is handed to each rule. Peer is nil when no paired config was
// supplied; Version is nil when no platform version is configured.
type Context struct {
	Config  *merge.Config
	Schema  *schema.Schema
	Role    role.Role
	Peer    *merge.Config
	Version *semver.Version

	rule     Rule
	findings []Finding
}

// Report records f, filling in the current rule's id and class when unset.
func (c *Context) Report(f Finding) {
	if f.Rule == "" {
		f.Rule = c.rule.ID()
	}
	if f.Class == "" {
		f.Class = c.rule.Class()
	}
	c.findings = append(c.findings, f)
}

// Errorf records an error finding for key.
func (c *Context) Errorf(key string, format string, args ...any) {
	c.Report(Finding{Severity: SeverityError, Key: key, Message: fmt.Sprintf(format, args...)})
}

// Warningf records a warning finding for key.
func (c *Context) Warningf(key string, format string, args ...any) {
	c.Report(Finding{Severity: SeverityWarning, Key: key, Message: fmt.Sprintf(format, args...)})
}

// Display returns the printable form of the value at path. Secret values
// are redacted.
func (c *Context) Display(path string, v schema.Value) string {
	if IsSecret(c.Schema, path) {
		return "<redacted>"
	}
	return fmt.Sprintf("%q", v.Text())
}

// IsSecret reports whether path, or the map-typed key it lies beneath, is
// declared secret.
func IsSecret(s *schema.Schema, path string) bool {
	if k, ok := s.Lookup(path); ok {
		return k.Secret
	}
	k, ok := s.MapAncestor(path)
	return ok && k.Secret
}

// Validator runs an ordered list of rules.
type Validator struct {
	schema  *schema.Schema
	rules   []Rule
	version *semver.Version
}

// Option configures a Validator.
type Option func(*Validator)

// WithPlatformVersion enables the compatibility rules for version v.
func WithPlatformVersion(v *semver.Version) Option {
	return func(val *Validator) { val.version = v }
}

// WithRules appends rules after the built-in ones.
func WithRules(rules ...Rule) Option {
	return func(val *Validator) { val.rules = append(val.rules, rules...) }
}

// New returns a validator for s with the built-in rules registered.
func New(s *schema.Schema, opts ...Option) *Validator {
	v := &Validator{schema: s, rules: BuiltinRules()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Rules returns the registered rules in execution order.
func (v *Validator) Rules() []Rule {
	return append([]Rule(nil), v.rules...)
}

// Validate runs every rule against cfg and returns all findings in rule
// order. peer may be nil.
func (v *Validator) Validate(cfg *merge.Config, r role.Role, peer *merge.Config) []Finding {
	c := &Context{
		Config:   cfg,
		Schema:   v.schema,
		Role:     r,
		Peer:     peer,
		Version:  v.version,
		findings: []Finding{},
	}
	for _, rule := range v.rules {
		c.rule = rule
		rule.Check(c)
	}
	return c.findings
}
