package layer

import (
	"strconv"
	"strings"

	"topo/internal/schema"
)

// Assignment is one statement of a gitlab.rb file: a method call such as
// `external_url "..."` or an indexed assignment such as
// `gitlab_rails['db_host'] = "..."`.
type Assignment struct {
	Path  string
	Value any
	Line  int
}

// ParseOmnibus parses gitlab.rb content into its assignments, in source
// order. Values decode to bool, int64, float64, string, nil, []any and
// map[string]any. file is only used in error messages.
func ParseOmnibus(data []byte, file string) ([]Assignment, error) {
	p := &parser{lex: newLexer(string(data), file)}
	if err := p.next(); err != nil {
		return nil, err
	}

	var out []Assignment
	for p.cur.typ != tokenEOF {
		if p.cur.typ == tokenSemicolon {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		a, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		out = append(out, a)

		switch {
		case p.cur.typ == tokenSemicolon, p.cur.typ == tokenEOF:
		case p.cur.line == p.prevLine:
			return nil, p.errorf("expected end of statement, got %s", p.cur.typ)
		}
	}
	return out, nil
}

type parser struct {
	lex      *lexer
	cur      token
	prevLine int
}

func (p *parser) next() error {
	p.prevLine = p.cur.line
	tok, err := p.lex.nextToken()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return p.lex.errorf(p.cur.line, p.cur.col, format, args...)
}

func (p *parser) expect(t tokenType) error {
	if p.cur.typ != t {
		return p.errorf("expected %s, got %s", t, p.cur.typ)
	}
	return p.next()
}

func (p *parser) parseStatement() (Assignment, error) {
	if p.cur.typ != tokenIdent {
		return Assignment{}, p.errorf("expected a setting name, got %s", p.cur.typ)
	}
	a := Assignment{Path: p.cur.value, Line: p.cur.line}
	if err := p.next(); err != nil {
		return a, err
	}

	var err error
	switch {
	case p.cur.typ == tokenLBracket && !p.cur.spaced:
		segs := []string{a.Path}
		for p.cur.typ == tokenLBracket && !p.cur.spaced {
			if err := p.next(); err != nil {
				return a, err
			}
			if p.cur.typ != tokenString && p.cur.typ != tokenSymbol {
				return a, p.errorf("expected a quoted key, got %s", p.cur.typ)
			}
			if p.cur.value == "" || strings.Contains(p.cur.value, ".") {
				return a, p.errorf("invalid key %q", p.cur.value)
			}
			segs = append(segs, p.cur.value)
			if err := p.next(); err != nil {
				return a, err
			}
			if err := p.expect(tokenRBracket); err != nil {
				return a, err
			}
		}
		a.Path = schema.JoinPath(segs...)
		if err := p.expect(tokenAssign); err != nil {
			return a, err
		}
		a.Value, err = p.parseValue()

	case p.cur.typ == tokenLParen:
		if err := p.next(); err != nil {
			return a, err
		}
		if a.Value, err = p.parseValue(); err != nil {
			return a, err
		}
		err = p.expect(tokenRParen)

	case p.cur.typ == tokenAssign:
		return a, p.errorf("local variables are not supported")

	default:
		a.Value, err = p.parseValue()
	}
	return a, err
}

func (p *parser) parseValue() (any, error) {
	tok := p.cur
	switch tok.typ {
	case tokenString, tokenSymbol:
		return tok.value, p.next()

	case tokenInt:
		n, err := strconv.ParseInt(tok.value, 10, 64)
		if err != nil {
			return nil, p.errorf("integer %s out of range", tok.value)
		}
		return n, p.next()

	case tokenFloat:
		f, err := strconv.ParseFloat(tok.value, 64)
		if err != nil {
			return nil, p.errorf("invalid float %s", tok.value)
		}
		return f, p.next()

	case tokenIdent:
		var v any
		switch tok.value {
		case "true":
			v = true
		case "false":
			v = false
		case "nil":
			v = nil
		default:
			return nil, p.errorf("unsupported expression %q", tok.value)
		}
		return v, p.next()

	case tokenLBracket:
		return p.parseArray()

	case tokenLBrace:
		return p.parseHash()
	}
	return nil, p.errorf("expected a value, got %s", tok.typ)
}

func (p *parser) parseArray() (any, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	items := []any{}
	for p.cur.typ != tokenRBracket {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		if p.cur.typ == tokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if p.cur.typ != tokenRBracket {
			return nil, p.errorf("expected ',' or ']', got %s", p.cur.typ)
		}
	}
	return items, p.next()
}

func (p *parser) parseHash() (any, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	entries := map[string]any{}
	for p.cur.typ != tokenRBrace {
		var key string
		switch p.cur.typ {
		case tokenLabel:
			key = p.cur.value
			if err := p.next(); err != nil {
				return nil, err
			}
		case tokenString, tokenSymbol, tokenInt:
			key = p.cur.value
			if err := p.next(); err != nil {
				return nil, err
			}
			if err := p.expect(tokenArrow); err != nil {
				return nil, err
			}
		default:
			return nil, p.errorf("expected a hash key, got %s", p.cur.typ)
		}

		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		entries[key] = v

		if p.cur.typ == tokenComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		if p.cur.typ != tokenRBrace {
			return nil, p.errorf("expected ',' or '}', got %s", p.cur.typ)
		}
	}
	return entries, p.next()
}
