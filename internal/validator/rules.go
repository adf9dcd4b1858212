package validator

import (
	"fmt"
	"sort"
	"strings"

	"topo/internal/invariant"
	"topo/internal/schema"

	"github.com/Masterminds/semver/v3"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Rule ids.
const (
	RuleType           = "schema/type"
	RuleEnum           = "schema/enum"
	RuleUnknownKey     = "schema/unknown-key"
	RuleRequired       = "presence/required"
	RuleForbidden      = "exclusion/forbidden"
	RulePinned         = "exclusion/pinned"
	RuleDeadConfig     = "dead-config"
	RuleIncomplete     = "referential/incomplete"
	RulePairing        = "pairing"
	RulePairMismatch   = "pairing/mismatch"
	RulePairUnverified = "pairing/unverified"
	RuleCompatibility  = "compatibility"
	RuleRemoved        = "compatibility/removed"
	RuleUnreleased     = "compatibility/unreleased"
	RuleInvariant      = "invariant"
)

const (
	invariantRulePrefix = "invariant/"
	maxSuggestDistance  = 2
)

// BuiltinRules returns the built-in rules in execution order.
func BuiltinRules() []Rule {
	return []Rule{
		NewRule(RuleType, ClassSchema, checkTypes),
		NewRule(RuleEnum, ClassSchema, checkEnums),
		NewRule(RuleUnknownKey, ClassSchema, checkUnknownKeys),
		NewRule(RuleRequired, ClassPresence, checkRequired),
		NewRule(RuleForbidden, ClassExclusion, checkForbidden),
		NewRule(RulePinned, ClassExclusion, checkPinned),
		NewRule(RuleDeadConfig, ClassDeadConfig, checkDeadConfig),
		NewRule(RuleIncomplete, ClassReferential, checkReferences),
		NewRule(RulePairing, ClassPairing, checkPairs),
		NewRule(RuleCompatibility, ClassCompatibility, checkCompatibility),
		NewRule(RuleInvariant, ClassInvariant, checkInvariants),
	}
}

// configured reports whether v carries a value other than the key's
// default. Null and empty values are never configured.
func configured(s *schema.Schema, path string, v schema.Value) bool {
	return !v.IsEmpty() && !s.IsDefault(path, v)
}

// active is configured and not the boolean false.
func active(s *schema.Schema, path string, v schema.Value) bool {
	return configured(s, path, v) && !v.IsFalse()
}

func checkTypes(c *Context) {
	for _, path := range c.Config.Keys() {
		k, ok := c.Schema.Lookup(path)
		if !ok {
			continue
		}
		v, _ := c.Config.Get(path)
		if v.Type() == schema.TypeNull || v.Type() == k.Type {
			continue
		}
		c.Errorf(path, "expected %s, got %s %s", k.Type, v.Type(), c.Display(path, v))
	}
}

func checkEnums(c *Context) {
	for _, path := range c.Config.Keys() {
		k, ok := c.Schema.Lookup(path)
		if !ok || len(k.Values) == 0 {
			continue
		}
		v, _ := c.Config.Get(path)
		if v.Type() != schema.TypeString || k.InDomain(v) {
			continue
		}
		c.Errorf(path, "%s is not valid, must be one of: %s", c.Display(path, v), strings.Join(k.Values, ", "))
	}
}

func checkUnknownKeys(c *Context) {
	var candidates []string
	for _, path := range c.Config.Keys() {
		if c.Schema.Known(path) {
			continue
		}
		if candidates == nil {
			candidates = c.Schema.Paths()
		}
		f := Finding{Severity: SeverityWarning, Key: path, Message: "unknown key"}
		if s, ok := suggest(path, candidates); ok {
			f.Related = []string{s}
			f.Message = fmt.Sprintf("unknown key, did you mean %q?", s)
		}
		c.Report(f)
	}
}

// suggest returns the closest candidate within maxSuggestDistance edits.
// Ties go to the lexicographically first candidate.
func suggest(path string, candidates []string) (string, bool) {
	best, bestDist := "", maxSuggestDistance+1
	src := []rune(path)
	for _, cand := range candidates {
		d := levenshtein.DistanceForStrings(src, []rune(cand), levenshtein.DefaultOptions)
		if d < bestDist {
			best, bestDist = cand, d
		}
	}
	return best, best != ""
}

func checkRequired(c *Context) {
	for _, path := range c.Role.Required {
		v, ok := c.Config.Get(path)
		switch {
		case !ok || v.IsEmpty():
			c.Errorf(path, "required by role %q but not set", c.Role.ID)
		case c.Schema.IsDefault(path, v):
			c.Errorf(path, "required by role %q but left at its default %s", c.Role.ID, c.Display(path, v))
		}
	}
}

func checkForbidden(c *Context) {
	for _, path := range c.Config.Keys() {
		pattern, ok := c.Role.Forbids(path)
		if !ok {
			continue
		}
		v, _ := c.Config.Get(path)
		if !active(c.Schema, path, v) {
			continue
		}
		if pattern == path {
			c.Errorf(path, "forbidden for role %q", c.Role.ID)
		} else {
			c.Errorf(path, "forbidden for role %q (matches %q)", c.Role.ID, pattern)
		}
	}
}

func checkPinned(c *Context) {
	for _, kv := range c.Role.Pinned {
		v, ok := c.Config.Get(kv.Path)
		if ok && v.Equal(kv.Value) {
			continue
		}
		got := "unset"
		if ok {
			got = c.Display(kv.Path, v)
		}
		c.Errorf(kv.Path, "role %q requires %s, got %s", c.Role.ID, c.Display(kv.Path, kv.Value), got)
	}
}

func checkDeadConfig(c *Context) {
	keys := c.Config.Keys()
	for _, ns := range c.Schema.Services() {
		flag := ns + ".enable"
		enabled, ok := c.Config.Get(flag)
		if !ok || !enabled.IsFalse() {
			continue
		}
		var dead []string
		prefix := ns + "."
		for _, path := range keys {
			if path == flag || !strings.HasPrefix(path, prefix) {
				continue
			}
			if v, _ := c.Config.Get(path); configured(c.Schema, path, v) {
				dead = append(dead, path)
			}
		}
		if len(dead) == 0 {
			continue
		}
		c.Report(Finding{
			Severity: SeverityWarning,
			Key:      flag,
			Related:  dead,
			Message:  fmt.Sprintf("%s is disabled but has %d configured key(s) that will be ignored: %s", ns, len(dead), strings.Join(dead, ", ")),
		})
	}
}

func checkReferences(c *Context) {
	for _, ref := range c.Schema.References {
		v, ok := c.Config.Get(ref.Anchor)
		if !ok || !active(c.Schema, ref.Anchor, v) {
			continue
		}
		var missing []string
		for _, comp := range ref.Companions {
			cv, ok := c.Config.Get(comp)
			if !ok || cv.IsEmpty() {
				missing = append(missing, comp)
			}
		}
		if len(missing) == 0 {
			continue
		}
		c.Report(Finding{
			Severity: SeverityError,
			Key:      ref.Anchor,
			Related:  missing,
			Message:  fmt.Sprintf("%s is set but %s must also be configured", ref.Anchor, strings.Join(missing, ", ")),
		})
	}
}

func checkPairs(c *Context) {
	for _, p := range c.Role.Pairs {
		if c.Peer == nil {
			c.Report(Finding{
				Rule:     RulePairUnverified,
				Severity: SeverityWarning,
				Key:      p.Local,
				Related:  []string{p.Peer},
				Message:  fmt.Sprintf("must match %s on the paired node; not verified because no peer configuration was supplied", p.Peer),
			})
			continue
		}

		lv, lok := c.Config.Get(p.Local)
		pv, pok := c.Peer.Get(p.Peer)
		if lok == pok && (!lok || lv.Equal(pv)) {
			continue
		}

		show := func(path string, v schema.Value, ok bool) string {
			if !ok {
				return "unset"
			}
			return c.Display(path, v)
		}
		c.Report(Finding{
			Rule:     RulePairMismatch,
			Severity: SeverityError,
			Key:      p.Local,
			Related:  []string{p.Peer},
			Message: fmt.Sprintf("%s (%s) differs from %s on the paired node (%s)",
				p.Local, show(p.Local, lv, lok), p.Peer, show(p.Peer, pv, pok)),
		})
	}
}

func checkCompatibility(c *Context) {
	if c.Version == nil {
		return
	}
	for _, path := range c.Config.Keys() {
		k, ok := c.Schema.Lookup(path)
		if !ok || (k.Since == "" && k.Until == "") {
			continue
		}
		v, _ := c.Config.Get(path)
		if !configured(c.Schema, path, v) {
			continue
		}
		if since, err := semver.NewVersion(k.Since); err == nil && c.Version.LessThan(since) {
			c.Report(Finding{
				Rule:     RuleUnreleased,
				Severity: SeverityError,
				Key:      path,
				Message:  fmt.Sprintf("introduced in %s, platform version is %s", k.Since, c.Version),
			})
		}
		if until, err := semver.NewVersion(k.Until); err == nil && !c.Version.LessThan(until) {
			c.Report(Finding{
				Rule:     RuleRemoved,
				Severity: SeverityError,
				Key:      path,
				Message:  fmt.Sprintf("removed in %s, platform version is %s", k.Until, c.Version),
			})
		}
	}
}

func checkInvariants(c *Context) {
	if len(c.Schema.Invariants) == 0 {
		return
	}
	ctx := invariant.EvalContext{
		Values: c.Config.Texts(),
		Role:   c.Role.ID,
	}
	if c.Peer != nil {
		ctx.Peer = c.Peer.Texts()
		ctx.HasPeer = true
	}

	for _, res := range invariant.EvaluateAll(c.Schema.Invariants, ctx) {
		inv := lookupInvariant(c.Schema.Invariants, res.Name)
		refs := invariant.Refs(inv.Expr)
		sort.Strings(refs)
		key := ""
		if len(refs) > 0 {
			key = refs[0]
		}
		f := Finding{
			Rule:    invariantRulePrefix + res.Name,
			Key:     key,
			Related: refs,
		}
		switch {
		case res.Unverified:
			f.Severity = SeverityWarning
			f.Message = fmt.Sprintf("rule %s not verified: %s", res.Rule, res.Message)
		case !res.Passed:
			f.Severity = SeverityError
			f.Message = fmt.Sprintf("rule %s violated", res.Rule)
			if !anySecret(c.Schema, refs) && res.Message != "" {
				f.Message += ": " + res.Message
			}
		default:
			continue
		}
		c.Report(f)
	}
}

func lookupInvariant(invs []invariant.Invariant, name string) invariant.Invariant {
	for _, inv := range invs {
		if inv.Name == name {
			return inv
		}
	}
	return invariant.Invariant{}
}

func anySecret(s *schema.Schema, paths []string) bool {
	for _, p := range paths {
		if IsSecret(s, p) {
			return true
		}
	}
	return false
}
