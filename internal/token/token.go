package token

import "fmt"

// Kind identifies the lexical class of a token
type Kind int

const (
	EOF Kind = iota
	Newline

	// Literals
	Number
	String
	Ident
	Builtin // identifier known to the builtin registry, see lexer.MarkBuiltins

	// Operators
	Plus
	Minus
	Star
	Slash
	Percent
	Assign
	Equal
	NotEqual
	Greater
	GreaterEqual
	Less
	LessEqual
	And
	Or
	Not

	// Delimiters
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Dot
	Semicolon
	Colon

	// Keywords
	If
	Else
	For
	While
	Break
	Continue
	Return
	Var
	Fn
	True
	False
	Null
)

var kindNames = map[Kind]string{
	EOF:          "EOF",
	Newline:      "NEWLINE",
	Number:       "NUMBER",
	String:       "STRING",
	Ident:        "IDENT",
	Builtin:      "BUILTIN",
	Plus:         "+",
	Minus:        "-",
	Star:         "*",
	Slash:        "/",
	Percent:      "%",
	Assign:       "=",
	Equal:        "==",
	NotEqual:     "!=",
	Greater:      ">",
	GreaterEqual: ">=",
	Less:         "<",
	LessEqual:    "<=",
	And:          "and",
	Or:           "or",
	Not:          "not",
	LParen:       "(",
	RParen:       ")",
	LBrace:       "{",
	RBrace:       "}",
	LBracket:     "[",
	RBracket:     "]",
	Comma:        ",",
	Dot:          ".",
	Semicolon:    ";",
	Colon:        ":",
	If:           "if",
	Else:         "else",
	For:          "for",
	While:        "while",
	Break:        "break",
	Continue:     "continue",
	Return:       "return",
	Var:          "var",
	Fn:           "fn",
	True:         "true",
	False:        "false",
	Null:         "null",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// keywords maps reserved words to their token kinds
var keywords = map[string]Kind{
	"if":       If,
	"else":     Else,
	"for":      For,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
	"var":      Var,
	"fn":       Fn,
	"true":     True,
	"false":    False,
	"null":     Null,
	"and":      And,
	"or":       Or,
	"not":      Not,
}

// LookupIdent returns the keyword kind for word, or Ident
func LookupIdent(word string) Kind {
	if kind, ok := keywords[word]; ok {
		return kind
	}
	return Ident
}

// IsKeyword reports whether word is reserved
func IsKeyword(word string) bool {
	_, ok := keywords[word]
	return ok
}

// Position is a 1-based source location
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a single lexical unit. Tokens are never mutated after the lexer
// produces them.
type Token struct {
	Kind    Kind
	Literal string
	Pos     Position

	// Interpolated marks a string literal containing a {{...}} segment
	Interpolated bool
}

func (t Token) String() string {
	switch t.Kind {
	case EOF:
		return fmt.Sprintf("EOF at %s", t.Pos)
	case Newline:
		return fmt.Sprintf("NEWLINE at %s", t.Pos)
	}
	return fmt.Sprintf("%s(%q) at %s", t.Kind, t.Literal, t.Pos)
}

// EndsOperand reports whether a token of this kind can close an operand,
// i.e. whether a following '-' must be a binary operator.
func (k Kind) EndsOperand() bool {
	switch k {
	case Number, String, Ident, Builtin, RParen, RBracket, True, False, Null:
		return true
	}
	return false
}

// StartsStatement reports whether the kind begins a statement that the
// parser can resynchronize on.
func (k Kind) StartsStatement() bool {
	switch k {
	case If, While, For, Return, Var, Fn:
		return true
	}
	return false
}
