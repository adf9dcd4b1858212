package layer

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenType represents the type of a lexical token in a gitlab.rb file
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenLabel  // key: inside a hash
	tokenSymbol // :key
	tokenString
	tokenInt
	tokenFloat
	tokenLBracket
	tokenRBracket
	tokenLBrace
	tokenRBrace
	tokenLParen
	tokenRParen
	tokenComma
	tokenAssign // =
	tokenArrow  // =>
	tokenSemicolon
)

var tokenNames = map[tokenType]string{
	tokenEOF:       "end of file",
	tokenIdent:     "identifier",
	tokenLabel:     "label",
	tokenSymbol:    "symbol",
	tokenString:    "string",
	tokenInt:       "integer",
	tokenFloat:     "float",
	tokenLBracket:  "'['",
	tokenRBracket:  "']'",
	tokenLBrace:    "'{'",
	tokenRBrace:    "'}'",
	tokenLParen:    "'('",
	tokenRParen:    "')'",
	tokenComma:     "','",
	tokenAssign:    "'='",
	tokenArrow:     "'=>'",
	tokenSemicolon: "';'",
}

func (t tokenType) String() string { return tokenNames[t] }

var punctuation = map[byte]tokenType{
	'[': tokenLBracket, ']': tokenRBracket,
	'{': tokenLBrace, '}': tokenRBrace,
	'(': tokenLParen, ')': tokenRParen,
	',': tokenComma, ';': tokenSemicolon,
}

// token is a lexical token with its source position. spaced records
// whitespace before the token, which separates `roles ['a']` (a call with
// an array argument) from `gitlab_rails['a']` (an index).
type token struct {
	typ    tokenType
	value  string
	line   int
	col    int
	spaced bool
}

// SyntaxError reports a malformed gitlab.rb statement.
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Line, e.Col, e.Msg)
}

// lexer tokenizes the subset of Ruby used by gitlab.rb
type lexer struct {
	input string
	file  string
	pos   int
	line  int
	col   int
}

func newLexer(input, file string) *lexer {
	return &lexer{input: input, file: file, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, format string, args ...any) error {
	return &SyntaxError{File: l.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// skipSpace advances past whitespace and comments. It reports whether
// anything was skipped.
func (l *lexer) skipSpace() bool {
	start := l.pos
	for l.pos < len(l.input) {
		switch ch := l.peek(); {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.advance(1)
		case ch == '#':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance(1)
			}
		case ch == '\\' && l.peekAt(1) == '\n':
			l.advance(2)
		default:
			return l.pos > start
		}
	}
	return l.pos > start
}

func (l *lexer) nextToken() (token, error) {
	spaced := l.skipSpace()
	tok := token{line: l.line, col: l.col, spaced: spaced}

	if l.pos >= len(l.input) {
		tok.typ = tokenEOF
		return tok, nil
	}

	ch := l.peek()
	switch {
	case ch == '=' && l.peekAt(1) == '>':
		l.advance(2)
		tok.typ, tok.value = tokenArrow, "=>"
	case ch == '=' && l.peekAt(1) != '=':
		l.advance(1)
		tok.typ, tok.value = tokenAssign, "="
	case punctuation[ch] != tokenEOF:
		l.advance(1)
		tok.typ, tok.value = punctuation[ch], string(ch)
	case ch == '"' || ch == '\'':
		s, err := l.readString(ch)
		if err != nil {
			return token{}, err
		}
		tok.typ, tok.value = tokenString, s
	case ch == ':' && (l.peekAt(1) == '"' || l.peekAt(1) == '\''):
		l.advance(1)
		s, err := l.readString(l.peek())
		if err != nil {
			return token{}, err
		}
		tok.typ, tok.value = tokenSymbol, s
	case ch == ':' && isIdentStart(l.peekAt(1)):
		l.advance(1)
		tok.typ, tok.value = tokenSymbol, l.readIdent()
	case isDigit(ch) || ((ch == '-' || ch == '+') && isDigit(l.peekAt(1))):
		return l.readNumber(tok)
	case isIdentStart(ch):
		tok.value = l.readIdent()
		tok.typ = tokenIdent
		if l.peek() == ':' && l.peekAt(1) != ':' {
			l.advance(1)
			tok.typ = tokenLabel
		}
	default:
		return token{}, l.errorf(tok.line, tok.col, "unexpected character %q", ch)
	}
	return tok, nil
}

// readString reads a quoted literal. Double-quoted strings decode the
// usual escapes and reject interpolation; single-quoted strings only
// unescape \\ and \'.
func (l *lexer) readString(quote byte) (string, error) {
	line, col := l.line, l.col
	l.advance(1)

	var sb strings.Builder
	for {
		if l.pos >= len(l.input) {
			return "", l.errorf(line, col, "unterminated string")
		}
		ch := l.peek()
		if ch == quote {
			l.advance(1)
			return sb.String(), nil
		}
		if quote == '"' && ch == '#' && l.peekAt(1) == '{' {
			return "", l.errorf(l.line, l.col, "string interpolation is not supported")
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			l.advance(1)
			continue
		}

		next := l.peekAt(1)
		if quote == '\'' {
			if next == '\\' || next == '\'' {
				sb.WriteByte(next)
				l.advance(2)
			} else {
				sb.WriteByte('\\')
				l.advance(1)
			}
			continue
		}

		switch next {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case 'a':
			sb.WriteByte(7)
		case 'e':
			sb.WriteByte(0x1b)
		case 's':
			sb.WriteByte(' ')
		case 'x':
			hex := ""
			for i := 2; i < 4 && isHex(l.peekAt(i)); i++ {
				hex += string(l.peekAt(i))
			}
			if hex == "" {
				return "", l.errorf(l.line, l.col, "invalid \\x escape")
			}
			b, _ := strconv.ParseUint(hex, 16, 8)
			sb.WriteByte(byte(b))
			l.advance(2 + len(hex))
			continue
		case 0:
			return "", l.errorf(line, col, "unterminated string")
		default:
			sb.WriteByte(next)
		}
		l.advance(2)
	}
}

func (l *lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.peek()) {
		l.advance(1)
	}
	return l.input[start:l.pos]
}

// readNumber reads an integer or float literal. Underscore separators are
// dropped.
func (l *lexer) readNumber(tok token) (token, error) {
	start := l.pos
	if ch := l.peek(); ch == '-' || ch == '+' {
		l.advance(1)
	}
	digits := func() {
		for isDigit(l.peek()) || (l.peek() == '_' && isDigit(l.peekAt(1))) {
			l.advance(1)
		}
	}
	digits()
	tok.typ = tokenInt
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		l.advance(1)
		digits()
		tok.typ = tokenFloat
	}
	if isIdentChar(l.peek()) {
		return token{}, l.errorf(l.line, l.col, "malformed number")
	}
	tok.value = strings.ReplaceAll(l.input[start:l.pos], "_", "")
	return tok, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isHex(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
