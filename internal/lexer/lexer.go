package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/arijanluiken/tradescript/internal/token"
)

// Error is a fatal scanning error. Scanning stops at the first one.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Lexer converts script source into tokens
type Lexer struct {
	src    string
	start  int // byte offset of the token being scanned
	cur    int
	line   int
	col    int
	tokPos token.Position
	tokens []token.Token
}

// New creates a lexer over src
func New(src string) *Lexer {
	return &Lexer{
		src:  src,
		line: 1,
		col:  1,
	}
}

// Tokenize scans src to completion. The returned slice always ends with
// exactly one EOF token when err is nil.
func Tokenize(src string) ([]token.Token, error) {
	return New(src).Scan()
}

// Scan runs the lexer until end of input
func (l *Lexer) Scan() ([]token.Token, error) {
	for !l.atEnd() {
		l.start = l.cur
		l.tokPos = token.Position{Line: l.line, Column: l.col}
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}

	l.tokens = append(l.tokens, token.Token{
		Kind: token.EOF,
		Pos:  token.Position{Line: l.line, Column: l.col},
	})
	return l.tokens, nil
}

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekNext() byte {
	if l.cur+1 >= len(l.src) {
		return 0
	}
	return l.src[l.cur+1]
}

func (l *Lexer) advance() byte {
	c := l.src[l.cur]
	l.cur++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) match(expected byte) bool {
	if l.atEnd() || l.src[l.cur] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) emit(kind token.Kind, literal string) {
	l.tokens = append(l.tokens, token.Token{
		Kind:    kind,
		Literal: literal,
		Pos:     l.tokPos,
	})
}

func (l *Lexer) errorf(pos token.Position, format string, args ...interface{}) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) scanToken() error {
	c := l.advance()

	switch c {
	case ' ', '\t', '\r':
		return nil
	case '\n':
		l.emit(token.Newline, "\n")
		return nil
	case '(':
		l.emit(token.LParen, "(")
	case ')':
		l.emit(token.RParen, ")")
	case '{':
		l.emit(token.LBrace, "{")
	case '}':
		l.emit(token.RBrace, "}")
	case '[':
		l.emit(token.LBracket, "[")
	case ']':
		l.emit(token.RBracket, "]")
	case ',':
		l.emit(token.Comma, ",")
	case '.':
		l.emit(token.Dot, ".")
	case ';':
		l.emit(token.Semicolon, ";")
	case ':':
		l.emit(token.Colon, ":")
	case '+':
		l.emit(token.Plus, "+")
	case '*':
		l.emit(token.Star, "*")
	case '%':
		l.emit(token.Percent, "%")
	case '/':
		if l.peek() == '/' {
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
			return nil
		}
		l.emit(token.Slash, "/")
	case '-':
		if isDigit(l.peek()) && l.minusStartsNumber() {
			return l.scanNumber()
		}
		l.emit(token.Minus, "-")
	case '=':
		if l.match('=') {
			l.emit(token.Equal, "==")
		} else {
			l.emit(token.Assign, "=")
		}
	case '!':
		if l.match('=') {
			l.emit(token.NotEqual, "!=")
		} else {
			l.emit(token.Not, "!")
		}
	case '>':
		if l.match('=') {
			l.emit(token.GreaterEqual, ">=")
		} else {
			l.emit(token.Greater, ">")
		}
	case '<':
		if l.match('=') {
			l.emit(token.LessEqual, "<=")
		} else {
			l.emit(token.Less, "<")
		}
	case '"', '\'':
		return l.scanString(c)
	default:
		switch {
		case isDigit(c):
			return l.scanNumber()
		case isAlpha(c):
			l.scanIdentifier()
		default:
			r, _ := utf8.DecodeRuneInString(l.src[l.start:])
			return l.errorf(l.tokPos, "unexpected character %q", r)
		}
	}
	return nil
}

// minusStartsNumber decides whether the '-' just consumed belongs to a
// numeric literal. It does when the previous token cannot end an operand,
// or when the minus is separated from the previous token by whitespace
// while touching the digits that follow.
func (l *Lexer) minusStartsNumber() bool {
	if len(l.tokens) == 0 {
		return true
	}
	prev := l.tokens[len(l.tokens)-1]
	if !prev.Kind.EndsOperand() {
		return true
	}
	if l.start == 0 {
		return true
	}
	switch l.src[l.start-1] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func (l *Lexer) scanNumber() error {
	for isDigit(l.peek()) {
		l.advance()
	}

	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	if c := l.peek(); c == 'e' || c == 'E' {
		// Only consume the exponent when digits follow; otherwise the
		// marker is left for the next token.
		offset := 1
		if sign := l.byteAt(l.cur + 1); sign == '+' || sign == '-' {
			offset = 2
		}
		if isDigit(l.byteAt(l.cur + offset)) {
			for i := 0; i < offset; i++ {
				l.advance()
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}

	l.emit(token.Number, l.src[l.start:l.cur])
	return nil
}

func (l *Lexer) byteAt(i int) byte {
	if i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

func (l *Lexer) scanIdentifier() {
	for isAlphaNumeric(l.peek()) {
		l.advance()
	}
	word := l.src[l.start:l.cur]
	l.emit(token.LookupIdent(word), word)
}

func (l *Lexer) scanString(quote byte) error {
	startPos := l.tokPos
	for !l.atEnd() && l.peek() != quote {
		if l.peek() == '\\' && l.cur+1 < len(l.src) {
			l.advance()
		}
		l.advance()
	}

	if l.atEnd() {
		return l.errorf(startPos, "unterminated string starting on line %d", startPos.Line)
	}

	// closing quote
	l.advance()

	body := l.src[l.start+1 : l.cur-1]
	l.tokens = append(l.tokens, token.Token{
		Kind:         token.String,
		Literal:      body,
		Pos:          startPos,
		Interpolated: strings.Contains(body, "{{"),
	})
	return nil
}

// MarkBuiltins returns a copy of tokens where identifiers accepted by
// isBuiltin are reclassified as token.Builtin.
func MarkBuiltins(tokens []token.Token, isBuiltin func(name string) bool) []token.Token {
	out := make([]token.Token, len(tokens))
	copy(out, tokens)
	for i, tok := range out {
		if tok.Kind == token.Ident && isBuiltin(tok.Literal) {
			out[i].Kind = token.Builtin
		}
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isAlphaNumeric(c byte) bool { return isAlpha(c) || isDigit(c) }
