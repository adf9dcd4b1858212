package invariant

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokDot
	tokImply
	tokEqual
	tokNotEqual
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// operators are matched before any other token, longest first.
var operators = []struct {
	text string
	kind tokenKind
}{
	{"=>", tokImply},
	{"⇒", tokImply},
	{"==", tokEqual},
	{"!=", tokNotEqual},
}

// tokenize splits a rule into tokens. The result always ends with tokEOF.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
scan:
	for i < len(src) {
		c := src[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
			continue
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: ".", pos: i})
			i++
			continue
		case c == '"' || c == '\'':
			text, n, err := scanString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("%w at position %d", err, i)
			}
			toks = append(toks, token{kind: tokString, text: text, pos: i})
			i += n
			continue
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
			continue
		}
		for _, op := range operators {
			if strings.HasPrefix(src[i:], op.text) {
				toks = append(toks, token{kind: op.kind, text: op.text, pos: i})
				i += len(op.text)
				continue scan
			}
		}
		return nil, fmt.Errorf("unexpected character '%c' at position %d", c, i)
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// scanString reads a literal opened by s[0] and returns its unescaped
// text and the number of bytes consumed. A backslash escapes the next byte.
func scanString(s string) (string, int, error) {
	quote := s[0]
	var sb strings.Builder
	for i := 1; i < len(s); i++ {
		switch c := s[i]; {
		case c == quote:
			return sb.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			sb.WriteByte(s[i])
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

// parser is a recursive-descent parser over a token slice:
//
//	rule       = comparison [ "=>" comparison ]
//	comparison = operand [ ( "==" | "!=" ) operand ]
//	operand    = string | ident { "." ident }
type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// ParseRule parses a rule expression. When known is non-nil every config
// and peer reference must satisfy it.
func ParseRule(rule string, known func(path string) bool) (RuleExpr, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("empty rule expression")
	}
	toks, err := tokenize(rule)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	expr, err := p.rule()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected token '%s' after expression at position %d", t.text, t.pos)
	}

	if known != nil {
		if err := ValidateRuleRefs(expr, known); err != nil {
			return nil, err
		}
	}
	return expr, nil
}

func (p *parser) rule() (RuleExpr, error) {
	ant, err := p.comparison()
	if err != nil || p.peek().kind != tokImply {
		return ant, err
	}
	p.next()
	con, err := p.comparison()
	if err != nil {
		return nil, err
	}
	return Implication{Antecedent: ant, Consequent: con}, nil
}

func (p *parser) comparison() (RuleExpr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	var op CompOp
	switch p.peek().kind {
	case tokEqual:
		op = OpEqual
	case tokNotEqual:
		op = OpNotEqual
	default:
		return left, nil
	}
	p.next()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return Comparison{Left: left, Right: right, Operator: op}, nil
}

func (p *parser) operand() (RuleExpr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return StringLiteral{Value: t.text}, nil
	case tokIdent:
		return p.ref(t.text)
	}
	return nil, fmt.Errorf("expected operand, got '%s' at position %d", t.text, t.pos)
}

// ref reads the rest of a dotted reference. "role" and "peer.<path>" are
// special.
func (p *parser) ref(first string) (RuleExpr, error) {
	parts := []string{first}
	for p.peek().kind == tokDot {
		p.next()
		t := p.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected identifier after '.', got '%s' at position %d", t.text, t.pos)
		}
		parts = append(parts, t.text)
	}

	switch {
	case len(parts) == 1 && first == "role":
		return RoleRef{}, nil
	case first == "peer":
		if len(parts) == 1 {
			return nil, fmt.Errorf("'peer' must be followed by a key path")
		}
		return PeerRef{Path: strings.Join(parts[1:], ".")}, nil
	}
	return ConfigRef{Path: strings.Join(parts, ".")}, nil
}

// FormatRule formats a RuleExpr back to a string representation
func FormatRule(expr RuleExpr) string {
	switch e := expr.(type) {
	case Implication:
		return fmt.Sprintf("%s => %s", FormatRule(e.Antecedent), FormatRule(e.Consequent))
	case Comparison:
		return fmt.Sprintf("%s %s %s", FormatRule(e.Left), e.Operator, FormatRule(e.Right))
	case ConfigRef:
		return e.Path
	case PeerRef:
		return "peer." + e.Path
	case RoleRef:
		return "role"
	case StringLiteral:
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(e.Value) + `"`
	default:
		return "<unknown>"
	}
}

// ValidateRuleRefs reports config and peer references that known rejects.
func ValidateRuleRefs(expr RuleExpr, known func(path string) bool) error {
	var undefined []string
	for _, ref := range collectConfigRefs(expr) {
		if !known(ref) {
			undefined = append(undefined, ref)
		}
	}

	if len(undefined) > 0 {
		return fmt.Errorf("undefined config key(s): %s", strings.Join(undefined, ", "))
	}

	return nil
}

// collectConfigRefs returns the key paths of every ConfigRef and PeerRef.
func collectConfigRefs(expr RuleExpr) []string {
	var refs []string

	switch e := expr.(type) {
	case Implication:
		refs = append(refs, collectConfigRefs(e.Antecedent)...)
		refs = append(refs, collectConfigRefs(e.Consequent)...)
	case Comparison:
		refs = append(refs, collectConfigRefs(e.Left)...)
		refs = append(refs, collectConfigRefs(e.Right)...)
	case ConfigRef:
		refs = append(refs, e.Path)
	case PeerRef:
		refs = append(refs, e.Path)
	}

	return refs
}

// UsesPeer reports whether expr references the paired config.
func UsesPeer(expr RuleExpr) bool {
	switch e := expr.(type) {
	case Implication:
		return UsesPeer(e.Antecedent) || UsesPeer(e.Consequent)
	case Comparison:
		return UsesPeer(e.Left) || UsesPeer(e.Right)
	case PeerRef:
		return true
	}
	return false
}

// Refs returns the key paths referenced by expr, config and peer alike.
func Refs(expr RuleExpr) []string {
	return collectConfigRefs(expr)
}
