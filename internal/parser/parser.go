package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arijanluiken/tradescript/internal/ast"
	"github.com/arijanluiken/tradescript/internal/lexer"
	"github.com/arijanluiken/tradescript/internal/token"
)

// Parser builds an AST from a token sequence using recursive descent
type Parser struct {
	tokens     []token.Token
	lineBreak  []bool // lineBreak[i] is true when a newline preceded tokens[i]
	current    int
	errors     ErrorList
	loopDepth  int
	blockDepth int
}

// New creates a parser. Newline tokens are dropped here; the parser only
// remembers where they were so ';' may be omitted at the end of a line.
func New(tokens []token.Token) *Parser {
	p := &Parser{
		tokens:    make([]token.Token, 0, len(tokens)),
		lineBreak: make([]bool, 0, len(tokens)),
	}

	sawNewline := false
	for _, tok := range tokens {
		switch tok.Kind {
		case token.Newline:
			sawNewline = true
			continue
		case token.Builtin:
			tok.Kind = token.Ident
		}
		p.tokens = append(p.tokens, tok)
		p.lineBreak = append(p.lineBreak, sawNewline)
		sawNewline = false
	}

	if len(p.tokens) == 0 || p.tokens[len(p.tokens)-1].Kind != token.EOF {
		p.tokens = append(p.tokens, token.Token{Kind: token.EOF, Pos: token.Position{Line: 1, Column: 1}})
		p.lineBreak = append(p.lineBreak, sawNewline)
	}
	return p
}

// Parse parses a complete program. It always returns a Program; syntax
// errors are collected and returned alongside it.
func Parse(tokens []token.Token) (*ast.Program, ErrorList) {
	return New(tokens).ParseProgram()
}

// ParseString tokenizes and parses src. The error is a *lexer.Error when
// scanning fails, or an ErrorList when the script has syntax errors (in
// which case the partial program is still returned).
func ParseString(src string) (*ast.Program, error) {
	tokens, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	program, errs := Parse(tokens)
	return program, errs.Err()
}

// ParseProgram parses declarations until EOF
func (p *Parser) ParseProgram() (*ast.Program, ErrorList) {
	program := &ast.Program{}
	for !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
	}
	return program, p.errors
}

// declaration is the error recovery boundary: a syntax error anywhere below
// it is recorded and the parser skips to the next statement.
func (p *Parser) declaration() ast.Node {
	stmt, err := p.parseDeclaration()
	if err != nil {
		p.errors = append(p.errors, err)
		p.synchronize()
		return nil
	}
	return stmt
}

func (p *Parser) parseDeclaration() (ast.Node, *Error) {
	switch {
	case p.match(token.Var):
		return p.varDeclaration()
	case p.check(token.Fn) && p.checkNext(token.Ident):
		p.advance()
		return p.function(p.previous(), true)
	}
	return p.statement()
}

// synchronize skips to the next statement boundary: after a ';', at the
// start of a new line, before a '}' or a statement keyword.
func (p *Parser) synchronize() {
	if p.blockDepth > 0 && p.check(token.RBrace) {
		return
	}
	p.advance()
	for !p.isAtEnd() {
		if p.previous().Kind == token.Semicolon {
			return
		}
		if p.lineBreakBefore() || p.check(token.RBrace) || p.peek().Kind.StartsStatement() {
			return
		}
		p.advance()
	}
}

func (p *Parser) varDeclaration() (ast.Node, *Error) {
	keyword := p.previous()
	name, err := p.consume(token.Ident, "expected variable name")
	if err != nil {
		return nil, err
	}

	decl := &ast.VariableDecl{Position: keyword.Pos, Name: name.Literal}
	if p.match(token.Assign) {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		decl.Value = value
	}

	if err := p.terminator("expected ';' after variable declaration"); err != nil {
		return nil, err
	}
	return decl, nil
}

func (p *Parser) function(keyword token.Token, named bool) (*ast.FunctionDecl, *Error) {
	fn := &ast.FunctionDecl{Position: keyword.Pos}
	if named {
		name, err := p.consume(token.Ident, "expected function name")
		if err != nil {
			return nil, err
		}
		fn.Name = name.Literal
	}

	if _, err := p.consume(token.LParen, "expected '(' after fn"); err != nil {
		return nil, err
	}
	if !p.check(token.RParen) {
		for {
			param, err := p.consume(token.Ident, "expected parameter name")
			if err != nil {
				return nil, err
			}
			fn.Parameters = append(fn.Parameters, param.Literal)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if _, err := p.consume(token.RParen, "expected ')' after parameters"); err != nil {
		return nil, err
	}
	if _, err := p.consume(token.LBrace, "expected '{' before function body"); err != nil {
		return nil, err
	}

	// loops do not extend into the function body
	savedDepth := p.loopDepth
	p.loopDepth = 0
	defer func() { p.loopDepth = savedDepth }()

	body, err := p.block()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *Parser) statement() (ast.Node, *Error) {
	switch {
	case p.match(token.If):
		return p.ifStatement()
	case p.match(token.While):
		return p.whileStatement()
	case p.match(token.For):
		return p.forStatement()
	case p.match(token.Return):
		return p.returnStatement()
	case p.match(token.Break):
		return p.loopControl(true)
	case p.match(token.Continue):
		return p.loopControl(false)
	case p.match(token.LBrace):
		return p.block()
	}
	return p.expressionStatement()
}

func (p *Parser) ifStatement() (ast.Node, *Error) {
	keyword := p.previous()
	condition, err := p.expression()
	if err != nil {
		return nil, err
	}
	then, err := p.statement()
	if err != nil {
		return nil, err
	}

	stmt := &ast.If{Position: keyword.Pos, Condition: condition, Then: then}
	if p.match(token.Else) {
		elseBranch, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBranch
	}
	return stmt, nil
}

func (p *Parser) whileStatement() (ast.Node, *Error) {
	keyword := p.previous()
	condition, err := p.expression()
	if err != nil {
		return nil, err
	}

	p.loopDepth++
	defer func() { p.loopDepth-- }()

	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	return &ast.While{Position: keyword.Pos, Condition: condition, Body: body}, nil
}

func (p *Parser) forStatement() (ast.Node, *Error) {
	keyword := p.previous()
	if _, err := p.consume(token.LParen, "expected '(' after 'for'"); err != nil {
		return nil, err
	}

	loop := &ast.For{Position: keyword.Pos}

	switch {
	case p.match(token.Semicolon):
	case p.match(token.Var):
		init, err := p.varDeclaration()
		if err != nil {
			return nil, err
		}
		loop.Init = init
	default:
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.Semicolon, "expected ';' after loop initializer"); err != nil {
			return nil, err
		}
		loop.Init = &ast.ExpressionStatement{Position: expr.Pos(), Expression: expr}
	}

	if !p.check(token.Semicolon) {
		condition, err := p.expression()
		if err != nil {
			return nil, err
		}
		loop.Condition = condition
	}
	if _, err := p.consume(token.Semicolon, "expected ';' after loop condition"); err != nil {
		return nil, err
	}

	if !p.check(token.RParen) {
		update, err := p.expression()
		if err != nil {
			return nil, err
		}
		loop.Update = update
	}
	if _, err := p.consume(token.RParen, "expected ')' after for clauses"); err != nil {
		return nil, err
	}

	p.loopDepth++
	defer func() { p.loopDepth-- }()

	body, err := p.statement()
	if err != nil {
		return nil, err
	}
	loop.Body = body
	return loop, nil
}

func (p *Parser) returnStatement() (ast.Node, *Error) {
	keyword := p.previous()
	stmt := &ast.Return{Position: keyword.Pos}

	if !p.check(token.Semicolon) && !p.check(token.RBrace) && !p.isAtEnd() && !p.lineBreakBefore() {
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}

	if err := p.terminator("expected ';' after return value"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) loopControl(isBreak bool) (ast.Node, *Error) {
	keyword := p.previous()
	if p.loopDepth == 0 {
		return nil, p.errorAt(keyword, fmt.Sprintf("'%s' outside of loop", keyword.Literal))
	}
	if err := p.terminator(fmt.Sprintf("expected ';' after '%s'", keyword.Literal)); err != nil {
		return nil, err
	}
	if isBreak {
		return &ast.Break{Position: keyword.Pos}, nil
	}
	return &ast.Continue{Position: keyword.Pos}, nil
}

// block parses statements up to the closing brace; the opening brace has
// already been consumed.
func (p *Parser) block() (*ast.Block, *Error) {
	block := &ast.Block{Position: p.previous().Pos}
	p.blockDepth++
	defer func() { p.blockDepth-- }()

	for !p.check(token.RBrace) && !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
	}
	if _, err := p.consume(token.RBrace, "expected '}' after block"); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) expressionStatement() (ast.Node, *Error) {
	expr, err := p.expression()
	if err != nil {
		return nil, err
	}
	p.match(token.Semicolon)
	return &ast.ExpressionStatement{Position: expr.Pos(), Expression: expr}, nil
}

// terminator accepts ';', or nothing when the statement ends the line, the
// block or the input.
func (p *Parser) terminator(msg string) *Error {
	if p.match(token.Semicolon) {
		return nil
	}
	if p.check(token.RBrace) || p.isAtEnd() || p.lineBreakBefore() {
		return nil
	}
	return p.errorAt(p.peek(), msg)
}

// Expressions

func (p *Parser) expression() (ast.Node, *Error) {
	return p.assignment()
}

func (p *Parser) assignment() (ast.Node, *Error) {
	expr, err := p.logicOr()
	if err != nil {
		return nil, err
	}

	if p.match(token.Assign) {
		equals := p.previous()
		switch expr.(type) {
		case *ast.Identifier, *ast.MemberAccess, *ast.ArrayAccess:
		default:
			return nil, p.errorAt(equals, "invalid assignment target")
		}

		value, err := p.assignment()
		if err != nil {
			return nil, err
		}
		return &ast.Assignment{Position: equals.Pos, Target: expr, Value: value}, nil
	}

	return expr, nil
}

func (p *Parser) logicOr() (ast.Node, *Error) {
	return p.binary(p.logicAnd, token.Or)
}

func (p *Parser) logicAnd() (ast.Node, *Error) {
	return p.binary(p.equality, token.And)
}

func (p *Parser) equality() (ast.Node, *Error) {
	return p.binary(p.comparison, token.Equal, token.NotEqual)
}

func (p *Parser) comparison() (ast.Node, *Error) {
	return p.binary(p.term, token.Greater, token.GreaterEqual, token.Less, token.LessEqual)
}

func (p *Parser) term() (ast.Node, *Error) {
	expr, err := p.factor()
	if err != nil {
		return nil, err
	}

	for {
		operator, ok := p.splitNegativeLiteral()
		if !ok {
			if !p.match(token.Plus, token.Minus) {
				return expr, nil
			}
			operator = p.previous()
		}
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		expr = &ast.BinaryOp{Position: operator.Pos, Operator: operator.Kind, Left: expr, Right: right}
	}
}

func (p *Parser) factor() (ast.Node, *Error) {
	return p.binary(p.unary, token.Star, token.Slash, token.Percent)
}

// binary parses a left-associative chain of operators sharing a level
func (p *Parser) binary(next func() (ast.Node, *Error), operators ...token.Kind) (ast.Node, *Error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}

	for p.match(operators...) {
		operator := p.previous()
		right, err := next()
		if err != nil {
			return nil, err
		}
		expr = &ast.BinaryOp{Position: operator.Pos, Operator: operator.Kind, Left: expr, Right: right}
	}
	return expr, nil
}

// splitNegativeLiteral reads a negative number literal that follows an
// operand on the same line as a minus operator, so "x -1" is a subtraction.
// The literal is made positive in place and the minus is returned.
func (p *Parser) splitNegativeLiteral() (token.Token, bool) {
	tok := p.peek()
	if tok.Kind != token.Number || !strings.HasPrefix(tok.Literal, "-") || p.lineBreakBefore() {
		return token.Token{}, false
	}

	p.tokens[p.current] = token.Token{
		Kind:    token.Number,
		Literal: tok.Literal[1:],
		Pos:     token.Position{Line: tok.Pos.Line, Column: tok.Pos.Column + 1},
	}
	return token.Token{Kind: token.Minus, Literal: "-", Pos: tok.Pos}, true
}

func (p *Parser) unary() (ast.Node, *Error) {
	if p.match(token.Not, token.Minus) {
		operator := p.previous()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryOp{Position: operator.Pos, Operator: operator.Kind, Operand: operand}, nil
	}
	return p.call()
}

func (p *Parser) call() (ast.Node, *Error) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case !p.lineBreakBefore() && p.match(token.LParen):
			expr, err = p.finishCall(expr)
			if err != nil {
				return nil, err
			}
		case p.match(token.Dot):
			name, err := p.consume(token.Ident, "expected property name after '.'")
			if err != nil {
				return nil, err
			}
			expr = &ast.MemberAccess{Position: name.Pos, Object: expr, Member: name.Literal}
		case !p.lineBreakBefore() && p.match(token.LBracket):
			bracket := p.previous()
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(token.RBracket, "expected ']' after index"); err != nil {
				return nil, err
			}
			expr = &ast.ArrayAccess{Position: bracket.Pos, Object: expr, Index: index}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) finishCall(callee ast.Node) (ast.Node, *Error) {
	paren := p.previous()
	args, err := p.arguments(token.RParen, "expected ')' after arguments")
	if err != nil {
		return nil, err
	}
	return &ast.FunctionCall{
		Position:  paren.Pos,
		Name:      ast.CalleeName(callee),
		Callee:    callee,
		Arguments: args,
	}, nil
}

func (p *Parser) arguments(closing token.Kind, msg string) ([]ast.Node, *Error) {
	var args []ast.Node
	if !p.check(closing) {
		for {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.match(token.Comma) {
				break
			}
		}
	}
	if _, err := p.consume(closing, msg); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) primary() (ast.Node, *Error) {
	tok := p.peek()

	switch tok.Kind {
	case token.Number:
		p.advance()
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, p.errorAt(tok, "invalid number literal")
		}
		return &ast.Literal{Position: tok.Pos, Kind: ast.NumberLiteral, Number: value}, nil
	case token.String:
		p.advance()
		if tok.Interpolated {
			return p.interpolation(tok)
		}
		return &ast.Literal{Position: tok.Pos, Kind: ast.StringLiteral, Str: unescape(tok.Literal)}, nil
	case token.True, token.False:
		p.advance()
		return &ast.Literal{Position: tok.Pos, Kind: ast.BooleanLiteral, Bool: tok.Kind == token.True}, nil
	case token.Null:
		p.advance()
		return &ast.Literal{Position: tok.Pos, Kind: ast.NullLiteral}, nil
	case token.Ident:
		p.advance()
		return &ast.Identifier{Position: tok.Pos, Name: tok.Literal}, nil
	case token.LParen:
		p.advance()
		expr, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(token.RParen, "expected ')' after expression"); err != nil {
			return nil, err
		}
		return expr, nil
	case token.LBracket:
		p.advance()
		elements, err := p.arguments(token.RBracket, "expected ']' after array elements")
		if err != nil {
			return nil, err
		}
		return &ast.ArrayLiteral{Position: tok.Pos, Elements: elements}, nil
	case token.Fn:
		p.advance()
		return p.function(tok, false)
	}

	return nil, p.errorAt(tok, "expected expression")
}

// interpolation splits a {{...}}-bearing string into literal and expression
// parts. Each expression is parsed with a nested parser.
func (p *Parser) interpolation(tok token.Token) (ast.Node, *Error) {
	node := &ast.Interpolation{Position: tok.Pos}
	rest := tok.Literal

	for rest != "" {
		open := strings.Index(rest, "{{")
		if open < 0 {
			node.Parts = append(node.Parts, &ast.Literal{Position: tok.Pos, Kind: ast.StringLiteral, Str: unescape(rest)})
			break
		}
		if open > 0 {
			node.Parts = append(node.Parts, &ast.Literal{Position: tok.Pos, Kind: ast.StringLiteral, Str: unescape(rest[:open])})
		}

		closing := strings.Index(rest[open+2:], "}}")
		if closing < 0 {
			return nil, p.errorAt(tok, "expected '}}' to close interpolation")
		}
		source := rest[open+2 : open+2+closing]
		rest = rest[open+2+closing+2:]

		expr, err := p.parseEmbedded(tok, source)
		if err != nil {
			return nil, err
		}
		node.Parts = append(node.Parts, expr)
	}

	return node, nil
}

func (p *Parser) parseEmbedded(tok token.Token, source string) (ast.Node, *Error) {
	tokens, err := lexer.Tokenize(source)
	if err != nil {
		return nil, p.errorAt(tok, fmt.Sprintf("invalid interpolation: %v", err))
	}

	sub := New(tokens)
	if sub.isAtEnd() {
		return nil, p.errorAt(tok, "expected expression in interpolation")
	}
	expr, perr := sub.expression()
	if perr != nil {
		return nil, p.errorAt(tok, "invalid interpolation: "+perr.Msg)
	}
	if !sub.isAtEnd() {
		return nil, p.errorAt(tok, "expected '}}' after interpolated expression")
	}
	return expr, nil
}

// Token helpers

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, kind := range kinds {
		if p.check(kind) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(kind token.Kind, msg string) (token.Token, *Error) {
	if p.check(kind) {
		return p.advance(), nil
	}
	return token.Token{}, p.errorAt(p.peek(), msg)
}

func (p *Parser) check(kind token.Kind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) checkNext(kind token.Kind) bool {
	if p.current+1 >= len(p.tokens) {
		return false
	}
	return p.tokens[p.current+1].Kind == kind
}

func (p *Parser) advance() token.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Kind == token.EOF
}

func (p *Parser) peek() token.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() token.Token {
	if p.current == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.current-1]
}

func (p *Parser) lineBreakBefore() bool {
	return p.lineBreak[p.current]
}

func (p *Parser) errorAt(tok token.Token, msg string) *Error {
	where := "at end"
	if tok.Kind != token.EOF {
		where = fmt.Sprintf("at '%s'", tok.Literal)
	}
	return &Error{Pos: tok.Pos, Msg: msg, Where: where}
}

// unescape decodes the backslash escapes the lexer keeps verbatim
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '"', '\'':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
