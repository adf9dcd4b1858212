package invariant

// RuleExpr is a node of a parsed rule expression.
type RuleExpr interface {
	isRuleExpr()
}

// CompOp is a comparison operator.
type CompOp string

const (
	OpEqual    CompOp = "=="
	OpNotEqual CompOp = "!="
)

// Implication is A => B. It holds when A is false or B is true.
type Implication struct {
	Antecedent RuleExpr
	Consequent RuleExpr
}

func (Implication) isRuleExpr() {}

// Comparison is A == B or A != B.
type Comparison struct {
	Left     RuleExpr
	Right    RuleExpr
	Operator CompOp
}

func (Comparison) isRuleExpr() {}

// ConfigRef refers to a key of the config under validation (e.g. "gitlab_rails.db_host").
type ConfigRef struct {
	Path string
}

func (ConfigRef) isRuleExpr() {}

// PeerRef refers to a key of the paired node's config, written "peer.<path>".
type PeerRef struct {
	Path string
}

func (PeerRef) isRuleExpr() {}

// RoleRef is the special "role" reference; it resolves to the role id.
type RoleRef struct{}

func (RoleRef) isRuleExpr() {}

// StringLiteral is a quoted string such as "geo-primary".
type StringLiteral struct {
	Value string
}

func (StringLiteral) isRuleExpr() {}

// Invariant is a named rule.
type Invariant struct {
	Name string
	Rule string
	Expr RuleExpr
}

// InvariantResult is the outcome of evaluating one invariant.
type InvariantResult struct {
	Name       string
	Rule       string
	Passed     bool
	Unverified bool // references the peer but none was supplied
	LeftValue  string
	RightValue string
	Message    string
}
