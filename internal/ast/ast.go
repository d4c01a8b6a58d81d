package ast

import (
	"github.com/arijanluiken/tradescript/internal/token"
)

// Node is implemented by every syntax tree node
type Node interface {
	Pos() token.Position
	node()
}

// Program is the root of a parsed script
type Program struct {
	Statements []Node
}

func (p *Program) Pos() token.Position {
	if len(p.Statements) > 0 {
		return p.Statements[0].Pos()
	}
	return token.Position{Line: 1, Column: 1}
}

// Block is a brace-delimited statement list with its own scope
type Block struct {
	Position   token.Position
	Statements []Node
}

// ExpressionStatement evaluates an expression for its value or side effects
type ExpressionStatement struct {
	Position   token.Position
	Expression Node
}

// LiteralKind distinguishes literal values
type LiteralKind int

const (
	NumberLiteral LiteralKind = iota
	StringLiteral
	BooleanLiteral
	NullLiteral
)

// Literal is a number, string, boolean or null constant
type Literal struct {
	Position token.Position
	Kind     LiteralKind
	Number   float64
	Str      string
	Bool     bool
}

// Interpolation is a string literal with embedded {{expression}} segments.
// Parts alternate between string Literals and expressions.
type Interpolation struct {
	Position token.Position
	Parts    []Node
}

// Identifier references a binding by name
type Identifier struct {
	Position token.Position
	Name     string
}

// BinaryOp applies an infix operator
type BinaryOp struct {
	Position token.Position
	Operator token.Kind
	Left     Node
	Right    Node
}

// UnaryOp applies a prefix operator
type UnaryOp struct {
	Position token.Position
	Operator token.Kind
	Operand  Node
}

// Assignment stores Value into Target, which is an Identifier, MemberAccess
// or ArrayAccess.
type Assignment struct {
	Position token.Position
	Target   Node
	Value    Node
}

// FunctionCall invokes a callee with positional arguments. Name holds the
// resolved callee name ("sma", "math.abs") when the callee is an identifier
// or member chain; it is empty when the callee is an arbitrary expression.
type FunctionCall struct {
	Position  token.Position
	Name      string
	Callee    Node
	Arguments []Node
}

// VariableDecl introduces a new binding in the current scope
type VariableDecl struct {
	Position token.Position
	Name     string
	Value    Node // nil when declared without initializer
}

// FunctionDecl defines a closure. Name is empty for anonymous functions.
type FunctionDecl struct {
	Position   token.Position
	Name       string
	Parameters []string
	Body       *Block
}

// If executes Then or Else depending on Condition
type If struct {
	Position  token.Position
	Condition Node
	Then      Node
	Else      Node // nil when absent
}

// While loops while Condition is truthy
type While struct {
	Position  token.Position
	Condition Node
	Body      Node
}

// For is a C-style loop; each clause may be nil
type For struct {
	Position  token.Position
	Init      Node
	Condition Node
	Update    Node
	Body      Node
}

// Return leaves the enclosing function, or the program at top level
type Return struct {
	Position token.Position
	Value    Node // nil for a bare return
}

// Break exits the nearest loop
type Break struct {
	Position token.Position
}

// Continue skips to the next iteration of the nearest loop
type Continue struct {
	Position token.Position
}

// ArrayAccess indexes a series (bars back), array or map
type ArrayAccess struct {
	Position token.Position
	Object   Node
	Index    Node
}

// MemberAccess reads a named member of a structured value
type MemberAccess struct {
	Position token.Position
	Object   Node
	Member   string
}

// ArrayLiteral builds an array value
type ArrayLiteral struct {
	Position token.Position
	Elements []Node
}

func (n *Block) Pos() token.Position               { return n.Position }
func (n *ExpressionStatement) Pos() token.Position { return n.Position }
func (n *Literal) Pos() token.Position             { return n.Position }
func (n *Interpolation) Pos() token.Position       { return n.Position }
func (n *Identifier) Pos() token.Position          { return n.Position }
func (n *BinaryOp) Pos() token.Position            { return n.Position }
func (n *UnaryOp) Pos() token.Position             { return n.Position }
func (n *Assignment) Pos() token.Position          { return n.Position }
func (n *FunctionCall) Pos() token.Position        { return n.Position }
func (n *VariableDecl) Pos() token.Position        { return n.Position }
func (n *FunctionDecl) Pos() token.Position        { return n.Position }
func (n *If) Pos() token.Position                  { return n.Position }
func (n *While) Pos() token.Position               { return n.Position }
func (n *For) Pos() token.Position                 { return n.Position }
func (n *Return) Pos() token.Position              { return n.Position }
func (n *Break) Pos() token.Position               { return n.Position }
func (n *Continue) Pos() token.Position            { return n.Position }
func (n *ArrayAccess) Pos() token.Position         { return n.Position }
func (n *MemberAccess) Pos() token.Position        { return n.Position }
func (n *ArrayLiteral) Pos() token.Position        { return n.Position }

func (*Program) node()             {}
func (*Block) node()               {}
func (*ExpressionStatement) node() {}
func (*Literal) node()             {}
func (*Interpolation) node()       {}
func (*Identifier) node()          {}
func (*BinaryOp) node()            {}
func (*UnaryOp) node()             {}
func (*Assignment) node()          {}
func (*FunctionCall) node()        {}
func (*VariableDecl) node()        {}
func (*FunctionDecl) node()        {}
func (*If) node()                  {}
func (*While) node()               {}
func (*For) node()                 {}
func (*Return) node()              {}
func (*Break) node()               {}
func (*Continue) node()            {}
func (*ArrayAccess) node()         {}
func (*MemberAccess) node()        {}
func (*ArrayLiteral) node()        {}

// CalleeName resolves the dotted name of an identifier or member chain.
// It returns "" for any other expression.
func CalleeName(n Node) string {
	switch e := n.(type) {
	case *Identifier:
		return e.Name
	case *MemberAccess:
		base := CalleeName(e.Object)
		if base == "" {
			return ""
		}
		return base + "." + e.Member
	}
	return ""
}
