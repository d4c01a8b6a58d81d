package ast

import (
	"strconv"
	"strings"
)

// String renders a node as an S-expression, e.g. (+ 1 (* 2 3)).
// Used by the CLI ast command and by tests.
func String(n Node) string {
	var b strings.Builder
	write(&b, n)
	return b.String()
}

func write(b *strings.Builder, n Node) {
	switch e := n.(type) {
	case nil:
		b.WriteString("nil")
	case *Program:
		b.WriteString("(program")
		writeList(b, e.Statements)
		b.WriteString(")")
	case *Block:
		b.WriteString("(block")
		writeList(b, e.Statements)
		b.WriteString(")")
	case *ExpressionStatement:
		write(b, e.Expression)
	case *Literal:
		switch e.Kind {
		case NumberLiteral:
			b.WriteString(strconv.FormatFloat(e.Number, 'g', -1, 64))
		case StringLiteral:
			b.WriteString(strconv.Quote(e.Str))
		case BooleanLiteral:
			b.WriteString(strconv.FormatBool(e.Bool))
		case NullLiteral:
			b.WriteString("null")
		}
	case *Interpolation:
		b.WriteString("(interp")
		writeList(b, e.Parts)
		b.WriteString(")")
	case *Identifier:
		b.WriteString(e.Name)
	case *BinaryOp:
		b.WriteString("(" + e.Operator.String() + " ")
		write(b, e.Left)
		b.WriteString(" ")
		write(b, e.Right)
		b.WriteString(")")
	case *UnaryOp:
		b.WriteString("(" + e.Operator.String() + " ")
		write(b, e.Operand)
		b.WriteString(")")
	case *Assignment:
		b.WriteString("(= ")
		write(b, e.Target)
		b.WriteString(" ")
		write(b, e.Value)
		b.WriteString(")")
	case *FunctionCall:
		b.WriteString("(call ")
		if e.Name != "" {
			b.WriteString(e.Name)
		} else {
			write(b, e.Callee)
		}
		writeList(b, e.Arguments)
		b.WriteString(")")
	case *VariableDecl:
		b.WriteString("(var " + e.Name)
		if e.Value != nil {
			b.WriteString(" ")
			write(b, e.Value)
		}
		b.WriteString(")")
	case *FunctionDecl:
		b.WriteString("(fn")
		if e.Name != "" {
			b.WriteString(" " + e.Name)
		}
		b.WriteString(" (" + strings.Join(e.Parameters, " ") + ") ")
		write(b, e.Body)
		b.WriteString(")")
	case *If:
		b.WriteString("(if ")
		write(b, e.Condition)
		b.WriteString(" ")
		write(b, e.Then)
		if e.Else != nil {
			b.WriteString(" ")
			write(b, e.Else)
		}
		b.WriteString(")")
	case *While:
		b.WriteString("(while ")
		write(b, e.Condition)
		b.WriteString(" ")
		write(b, e.Body)
		b.WriteString(")")
	case *For:
		b.WriteString("(for ")
		write(b, e.Init)
		b.WriteString(" ")
		write(b, e.Condition)
		b.WriteString(" ")
		write(b, e.Update)
		b.WriteString(" ")
		write(b, e.Body)
		b.WriteString(")")
	case *Return:
		b.WriteString("(return")
		if e.Value != nil {
			b.WriteString(" ")
			write(b, e.Value)
		}
		b.WriteString(")")
	case *Break:
		b.WriteString("(break)")
	case *Continue:
		b.WriteString("(continue)")
	case *ArrayAccess:
		b.WriteString("(index ")
		write(b, e.Object)
		b.WriteString(" ")
		write(b, e.Index)
		b.WriteString(")")
	case *MemberAccess:
		b.WriteString("(. ")
		write(b, e.Object)
		b.WriteString(" " + e.Member + ")")
	case *ArrayLiteral:
		b.WriteString("(array")
		writeList(b, e.Elements)
		b.WriteString(")")
	}
}

func writeList(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		b.WriteString(" ")
		write(b, n)
	}
}
