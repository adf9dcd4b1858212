package invariant

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseRule_Valid(t *testing.T) {
	tests := []struct {
		name string
		rule string
	}{
		{"equality with string literal", `gitlab_rails.db_adapter == "postgresql"`},
		{"single quoted literal", `gitlab_rails.db_adapter == 'postgresql'`},
		{"config ref comparison", `gitlab_rails.redis_port == redis.port`},
		{"implication with =>", `role == "geo-secondary" => postgresql.enable == "false"`},
		{"implication with ⇒", `role == "geo-secondary" ⇒ postgresql.enable == "false"`},
		{"peer ref", `gitaly.auth_token == peer.gitlab_rails.gitaly_token`},
		{"bare antecedent", `gitlab_rails.ldap_enabled => gitlab_rails.ldap_servers != ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRule(tt.rule, nil); err != nil {
				t.Errorf("ParseRule() error = %v", err)
			}
		})
	}
}

func TestParseRule_SpecialRefs(t *testing.T) {
	expr, err := ParseRule(`role == peer.gitlab_rails.geo_node_name`, nil)
	if err != nil {
		t.Fatalf("ParseRule() error = %v", err)
	}

	comp, ok := expr.(Comparison)
	if !ok {
		t.Fatalf("expected Comparison, got %T", expr)
	}
	if _, ok := comp.Left.(RoleRef); !ok {
		t.Errorf("expected RoleRef on left, got %T", comp.Left)
	}
	if got, ok := comp.Right.(PeerRef); !ok || got.Path != "gitlab_rails.geo_node_name" {
		t.Errorf("expected PeerRef{gitlab_rails.geo_node_name} on right, got %#v", comp.Right)
	}
	if !UsesPeer(expr) {
		t.Error("UsesPeer() = false, want true")
	}
}

func TestParseRule_Errors(t *testing.T) {
	tests := []struct {
		name    string
		rule    string
		wantErr string
	}{
		{"empty rule", "", "empty rule expression"},
		{"unterminated string", `redis.bind == "0.0.0.0`, "unterminated string literal"},
		{"unexpected character", `redis.bind @ "0.0.0.0"`, "unexpected character"},
		{"missing operand after dot", `redis. == "0.0.0.0"`, "expected identifier after '.'"},
		{"bare peer", `peer == "x"`, "'peer' must be followed"},
		{"trailing tokens", `redis.bind == "a" "b"`, "unexpected token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRule(tt.rule, nil)
			if err == nil {
				t.Fatalf("ParseRule() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseRule() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRuleRefs(t *testing.T) {
	known := func(keys ...string) func(string) bool {
		return func(p string) bool {
			for _, k := range keys {
				if k == p {
					return true
				}
			}
			return false
		}
	}

	tests := []struct {
		name    string
		rule    string
		known   func(string) bool
		wantErr bool
	}{
		{"valid refs", `redis.bind == "0.0.0.0"`, known("redis.bind"), false},
		{"undefined ref", `redis.bind == "0.0.0.0"`, known("redis.port"), true},
		{"peer ref checked", `redis.bind == peer.redis.bindd`, known("redis.bind"), true},
		{"role not validated", `role == "redis-only"`, known(), false},
		{"string literal not validated", `"a" == "a"`, known(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseRule(tt.rule, nil)
			if err != nil {
				t.Fatalf("ParseRule() error = %v", err)
			}
			err = ValidateRuleRefs(expr, tt.known)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRuleRefs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatRule(t *testing.T) {
	tests := []struct {
		name     string
		expr     RuleExpr
		expected string
	}{
		{"string literal", StringLiteral{Value: "geo"}, `"geo"`},
		{"escaped literal", StringLiteral{Value: `a"b\c`}, `"a\"b\\c"`},
		{"config ref", ConfigRef{Path: "redis.bind"}, "redis.bind"},
		{"peer ref", PeerRef{Path: "redis.password"}, "peer.redis.password"},
		{"role", RoleRef{}, "role"},
		{
			"implication",
			Implication{
				Antecedent: Comparison{Left: RoleRef{}, Right: StringLiteral{Value: "redis-only"}, Operator: OpEqual},
				Consequent: Comparison{Left: ConfigRef{Path: "redis.bind"}, Right: StringLiteral{Value: "127.0.0.1"}, Operator: OpNotEqual},
			},
			`role == "redis-only" => redis.bind != "127.0.0.1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FormatRule(tt.expr); result != tt.expected {
				t.Errorf("FormatRule() = %q, want %q", result, tt.expected)
			}
		})
	}
}

// identGen yields short lowercase identifiers that are never the reserved
// words "role" or "peer".
func identGen() gopter.Gen {
	return gen.AlphaString().Map(func(s string) string {
		s = strings.ToLower(s)
		if len(s) > 8 {
			s = s[:8]
		}
		if s == "" || s == "role" || s == "peer" {
			return "x" + s
		}
		return s
	})
}

// Feature: topo-invariants, Property 3: Rule Expression Round-Trip
// Formatting any rule AST and parsing it back produces an equal AST.
func TestProperty3_RuleExpressionRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genPath := gen.SliceOfN(2, identGen()).Map(func(parts []string) string {
		return strings.Join(parts, ".")
	})

	genOperand := gen.OneGenOf(
		genPath.Map(func(p string) RuleExpr { return ConfigRef{Path: p} }),
		genPath.Map(func(p string) RuleExpr { return PeerRef{Path: p} }),
		gen.Const(RuleExpr(RoleRef{})),
		gen.AnyString().Map(func(s string) RuleExpr { return StringLiteral{Value: s} }),
	)

	genComparison := gopter.CombineGens(
		genOperand,
		gen.OneConstOf(OpEqual, OpNotEqual),
		genOperand,
	).Map(func(vals []interface{}) RuleExpr {
		return Comparison{
			Left:     vals[0].(RuleExpr),
			Operator: vals[1].(CompOp),
			Right:    vals[2].(RuleExpr),
		}
	})

	genRuleExpr := gen.OneGenOf(
		genComparison,
		gopter.CombineGens(genComparison, genComparison).Map(func(vals []interface{}) RuleExpr {
			return Implication{Antecedent: vals[0].(RuleExpr), Consequent: vals[1].(RuleExpr)}
		}),
	)

	properties.Property("round-trip preserves rule expression", prop.ForAll(
		func(original RuleExpr) bool {
			formatted := FormatRule(original)
			parsed, err := ParseRule(formatted, nil)
			if err != nil {
				t.Logf("ParseRule failed for %q: %v", formatted, err)
				return false
			}
			if !reflect.DeepEqual(original, parsed) {
				t.Logf("round-trip mismatch:\n  original: %+v\n  formatted: %q\n  parsed: %+v", original, formatted, parsed)
				return false
			}
			return true
		},
		genRuleExpr,
	))

	properties.TestingRun(t)
}

// Feature: topo-invariants, Property 4: Undefined Key Detection
// A rule referencing a key the schema does not know is rejected, and the
// error names the key.
func TestProperty4_UndefinedKeyDetection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("undefined keys are reported", prop.ForAll(
		func(ns, key string) bool {
			path := ns + "." + key
			known := func(p string) bool { return p == "schema.known" }
			_, err := ParseRule(path+` == "x"`, known)
			if path == "schema.known" {
				return err == nil
			}
			return err != nil && strings.Contains(err.Error(), path)
		},
		identGen(),
		identGen(),
	))

	properties.TestingRun(t)
}
