package invariant

import "fmt"

// EvalContext provides values for invariant evaluation. Values hold the
// canonical text of each merged key; absent keys resolve to "".
type EvalContext struct {
	Values  map[string]string
	Peer    map[string]string
	HasPeer bool
	Role    string
}

// outcome is the result of evaluating one sub-expression. left and right
// are the operand texts shown when the invariant fails.
type outcome struct {
	holds       bool
	left, right string
	why         string
}

// Evaluate evaluates a single invariant. An invariant that references the
// peer is reported unverified, and passing, when no peer is available.
func Evaluate(inv Invariant, ctx EvalContext) InvariantResult {
	res := InvariantResult{Name: inv.Name, Rule: inv.Rule, Passed: true}
	if !ctx.HasPeer && UsesPeer(inv.Expr) {
		res.Unverified = true
		res.Message = "references the paired node, which was not supplied"
		return res
	}

	o := ctx.eval(inv.Expr)
	res.Passed = o.holds
	res.LeftValue, res.RightValue = o.left, o.right
	if !o.holds {
		res.Message = o.why
	}
	return res
}

// EvaluateAll evaluates every invariant in order, passing or not.
func EvaluateAll(invariants []Invariant, ctx EvalContext) []InvariantResult {
	results := make([]InvariantResult, len(invariants))
	for i, inv := range invariants {
		results[i] = Evaluate(inv, ctx)
	}
	return results
}

func (ctx EvalContext) eval(expr RuleExpr) outcome {
	switch e := expr.(type) {
	case Implication:
		ant, con := ctx.eval(e.Antecedent), ctx.eval(e.Consequent)
		o := outcome{
			holds: !ant.holds || con.holds,
			left:  firstNonEmpty(ant.left, ant.right),
			right: firstNonEmpty(con.left, con.right),
		}
		if !o.holds {
			o.why = fmt.Sprintf("'%s' holds but '%s' does not", FormatRule(e.Antecedent), FormatRule(e.Consequent))
		}
		return o
	case Comparison:
		l, r := ctx.text(e.Left), ctx.text(e.Right)
		o := outcome{left: l, right: r}
		switch e.Operator {
		case OpEqual:
			o.holds = l == r
			o.why = fmt.Sprintf("'%s' != '%s'", l, r)
		case OpNotEqual:
			o.holds = l != r
			o.why = fmt.Sprintf("'%s' == '%s'", l, r)
		default:
			o.why = fmt.Sprintf("unknown operator: %s", e.Operator)
		}
		return o
	case ConfigRef, PeerRef, RoleRef, StringLiteral:
		v := ctx.text(e)
		_, literal := e.(StringLiteral)
		return outcome{holds: literal || truthy(v), left: v}
	}
	return outcome{why: "unknown expression type"}
}

// text resolves an operand to its string form. Nested expressions become
// "true" or "false".
func (ctx EvalContext) text(expr RuleExpr) string {
	switch e := expr.(type) {
	case ConfigRef:
		return ctx.Values[e.Path]
	case PeerRef:
		return ctx.Peer[e.Path]
	case RoleRef:
		return ctx.Role
	case StringLiteral:
		return e.Value
	case Comparison, Implication:
		return fmt.Sprint(ctx.eval(e).holds)
	}
	return ""
}

// truthy treats a bare reference as a condition: set and not false.
func truthy(val string) bool {
	return val != "" && val != "false" && val != "null"
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
