package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sahilm/fuzzy"

	"github.com/arijanluiken/tradescript/internal/ast"
	"github.com/arijanluiken/tradescript/internal/token"
)

const (
	DefaultMaxIterations = 1_000_000
	DefaultMaxCallDepth  = 256
)

// Builtins resolves registry functions by exact name
type Builtins interface {
	Lookup(name string) (BuiltinFunc, bool)
	Names() []string
}

// Call is the per-invocation context handed to a builtin
type Call struct {
	Name   string
	Pos    token.Position
	Logger zerolog.Logger

	interp *Interpreter
}

// Print appends a line to the execution output
func (c *Call) Print(line string) {
	c.interp.output = append(c.interp.output, line)
}

// Plot records a named output value. A later plot under the same name
// replaces the earlier one.
func (c *Call) Plot(name string, v Value) {
	c.interp.plots[name] = v
}

// Context returns the execution context
func (c *Call) Context() context.Context {
	return c.interp.ctx
}

// Result is the outcome of a successful execution
type Result struct {
	Value  Value
	Output []string
	Plots  map[string]Value
}

// MarshalJSON encodes script values as plain JSON data
func (r *Result) MarshalJSON() ([]byte, error) {
	plots := make(map[string]interface{}, len(r.Plots))
	for name, v := range r.Plots {
		plots[name] = Native(v)
	}
	output := r.Output
	if output == nil {
		output = []string{}
	}
	return json.Marshal(struct {
		Value  interface{}            `json:"value"`
		Output []string               `json:"output"`
		Plots  map[string]interface{} `json:"plots"`
	}{
		Value:  Native(r.Value),
		Output: output,
		Plots:  plots,
	})
}

// Option configures an Interpreter
type Option func(*Interpreter)

// WithMaxIterations bounds the total number of loop iterations. Zero or
// less disables the bound.
func WithMaxIterations(n int) Option {
	return func(in *Interpreter) { in.maxIterations = n }
}

// WithMaxCallDepth bounds function call nesting. Zero or less disables the
// bound.
func WithMaxCallDepth(n int) Option {
	return func(in *Interpreter) { in.maxCallDepth = n }
}

// WithContext makes the execution stop once ctx is done
func WithContext(ctx context.Context) Option {
	return func(in *Interpreter) { in.ctx = ctx }
}

// WithLogger sets the logger used by log() and for debug tracing
func WithLogger(logger zerolog.Logger) Option {
	return func(in *Interpreter) { in.logger = logger }
}

// Interpreter walks a parsed program. It holds the state of one execution
// and must not be shared between goroutines.
type Interpreter struct {
	builtins Builtins
	globals  *Environment
	env      *Environment

	maxIterations int
	maxCallDepth  int
	iterations    int
	callDepth     int

	ctx    context.Context
	logger zerolog.Logger
	output []string
	plots  map[string]Value
}

// New creates an interpreter bound to a builtin registry
func New(builtins Builtins, opts ...Option) *Interpreter {
	globals := NewEnvironment()
	in := &Interpreter{
		builtins:      builtins,
		globals:       globals,
		env:           globals,
		maxIterations: DefaultMaxIterations,
		maxCallDepth:  DefaultMaxCallDepth,
		ctx:           context.Background(),
		logger:        zerolog.Nop(),
		plots:         make(map[string]Value),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Define binds a global before execution, e.g. the market data series
func (in *Interpreter) Define(name string, v Value) {
	in.globals.Define(name, v)
}

// Globals returns the global scope
func (in *Interpreter) Globals() *Environment {
	return in.globals
}

// Execute runs program to completion. The result value is the value of a
// top-level return, or else of the last top-level expression statement.
func (in *Interpreter) Execute(program *ast.Program) (*Result, error) {
	var last Value = Null

	for _, stmt := range program.Statements {
		sig, v, err := in.exec(stmt)
		if err != nil {
			in.logger.Debug().Err(err).Msg("Script execution failed")
			return nil, err
		}
		if sig == signalReturn {
			last = v
			break
		}
		if _, ok := stmt.(*ast.ExpressionStatement); ok {
			last = v
		}
	}

	in.logger.Debug().
		Int("iterations", in.iterations).
		Int("output_lines", len(in.output)).
		Int("plots", len(in.plots)).
		Msg("Script executed")

	return &Result{Value: last, Output: in.output, Plots: in.plots}, nil
}

type signal int

const (
	signalNone signal = iota
	signalBreak
	signalContinue
	signalReturn
)

func (in *Interpreter) exec(node ast.Node) (signal, Value, error) {
	switch n := node.(type) {
	case *ast.ExpressionStatement:
		v, err := in.eval(n.Expression)
		return signalNone, v, err

	case *ast.VariableDecl:
		var v Value = Null
		if n.Value != nil {
			var err error
			if v, err = in.eval(n.Value); err != nil {
				return signalNone, nil, err
			}
		}
		in.env.Define(n.Name, v)
		return signalNone, Null, nil

	case *ast.FunctionDecl:
		fn := in.closure(n)
		if n.Name != "" {
			in.env.Define(n.Name, fn)
		}
		return signalNone, fn, nil

	case *ast.Block:
		return in.execBlock(n.Statements, NewEnclosedEnvironment(in.env))

	case *ast.If:
		cond, err := in.eval(n.Condition)
		if err != nil {
			return signalNone, nil, err
		}
		if Truthy(cond) {
			return in.exec(n.Then)
		}
		if n.Else != nil {
			return in.exec(n.Else)
		}
		return signalNone, Null, nil

	case *ast.While:
		return in.execWhile(n)

	case *ast.For:
		return in.execFor(n)

	case *ast.Return:
		if n.Value == nil {
			return signalReturn, Null, nil
		}
		v, err := in.eval(n.Value)
		if err != nil {
			return signalNone, nil, err
		}
		return signalReturn, v, nil

	case *ast.Break:
		return signalBreak, Null, nil

	case *ast.Continue:
		return signalContinue, Null, nil
	}

	v, err := in.eval(node)
	return signalNone, v, err
}

// execBlock runs statements in env and restores the previous scope on exit
func (in *Interpreter) execBlock(stmts []ast.Node, env *Environment) (signal, Value, error) {
	previous := in.env
	in.env = env
	defer func() { in.env = previous }()

	for _, stmt := range stmts {
		sig, v, err := in.exec(stmt)
		if err != nil || sig != signalNone {
			return sig, v, err
		}
	}
	return signalNone, Null, nil
}

func (in *Interpreter) execWhile(n *ast.While) (signal, Value, error) {
	for {
		cond, err := in.eval(n.Condition)
		if err != nil {
			return signalNone, nil, err
		}
		if !Truthy(cond) {
			return signalNone, Null, nil
		}
		if err := in.tick(n.Position); err != nil {
			return signalNone, nil, err
		}

		sig, v, err := in.exec(n.Body)
		if err != nil {
			return signalNone, nil, err
		}
		switch sig {
		case signalBreak:
			return signalNone, Null, nil
		case signalReturn:
			return sig, v, nil
		}
	}
}

func (in *Interpreter) execFor(n *ast.For) (signal, Value, error) {
	previous := in.env
	in.env = NewEnclosedEnvironment(previous)
	defer func() { in.env = previous }()

	if n.Init != nil {
		if _, _, err := in.exec(n.Init); err != nil {
			return signalNone, nil, err
		}
	}

	for {
		if n.Condition != nil {
			cond, err := in.eval(n.Condition)
			if err != nil {
				return signalNone, nil, err
			}
			if !Truthy(cond) {
				return signalNone, Null, nil
			}
		}
		if err := in.tick(n.Position); err != nil {
			return signalNone, nil, err
		}

		sig, v, err := in.exec(n.Body)
		if err != nil {
			return signalNone, nil, err
		}
		switch sig {
		case signalBreak:
			return signalNone, Null, nil
		case signalReturn:
			return sig, v, nil
		}

		if n.Update != nil {
			if _, err := in.eval(n.Update); err != nil {
				return signalNone, nil, err
			}
		}
	}
}

// tick charges one loop iteration against the budget and checks the context
func (in *Interpreter) tick(pos token.Position) error {
	in.iterations++
	if in.maxIterations > 0 && in.iterations > in.maxIterations {
		return newError(ErrResourceExhausted, pos, "maximum loop iterations (%d) exceeded", in.maxIterations)
	}
	return in.checkContext(pos)
}

func (in *Interpreter) checkContext(pos token.Position) error {
	if err := in.ctx.Err(); err != nil {
		e := newError(ErrCancelled, pos, "execution stopped: %v", err)
		e.cause = err
		return e
	}
	return nil
}

func (in *Interpreter) eval(node ast.Node) (Value, error) {
	switch n := node.(type) {
	case *ast.Literal:
		switch n.Kind {
		case ast.NumberLiteral:
			return Number(n.Number), nil
		case ast.StringLiteral:
			return String(n.Str), nil
		case ast.BooleanLiteral:
			return Boolean(n.Bool), nil
		}
		return Null, nil

	case *ast.Interpolation:
		var b strings.Builder
		for _, part := range n.Parts {
			v, err := in.eval(part)
			if err != nil {
				return nil, err
			}
			b.WriteString(v.String())
		}
		return String(b.String()), nil

	case *ast.Identifier:
		return in.lookup(n)

	case *ast.BinaryOp:
		return in.evalBinary(n)

	case *ast.UnaryOp:
		operand, err := in.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		return unary(n.Operator, operand, n.Position)

	case *ast.Assignment:
		return in.evalAssignment(n)

	case *ast.FunctionCall:
		return in.evalCall(n)

	case *ast.FunctionDecl:
		return in.closure(n), nil

	case *ast.ArrayLiteral:
		elems := make([]Value, len(n.Elements))
		for i, e := range n.Elements {
			v, err := in.eval(e)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return NewArray(elems...), nil

	case *ast.ArrayAccess:
		object, err := in.eval(n.Object)
		if err != nil {
			return nil, err
		}
		index, err := in.eval(n.Index)
		if err != nil {
			return nil, err
		}
		return indexValue(object, index, n.Position)

	case *ast.MemberAccess:
		object, err := in.eval(n.Object)
		if err != nil {
			return nil, err
		}
		return member(object, n.Member, n.Position)
	}

	return nil, newError(ErrTypeMismatch, node.Pos(), "cannot evaluate %T", node)
}

func (in *Interpreter) lookup(n *ast.Identifier) (Value, error) {
	if v, ok := in.env.Get(n.Name); ok {
		return v, nil
	}
	if fn, ok := in.builtins.Lookup(n.Name); ok {
		return &Callable{Name: n.Name, Builtin: fn}, nil
	}
	return nil, newError(ErrUndefinedVariable, n.Position, "undefined variable '%s'", n.Name)
}

func (in *Interpreter) closure(n *ast.FunctionDecl) *Callable {
	return &Callable{Name: n.Name, Params: n.Parameters, Body: n.Body, Env: in.env}
}

func (in *Interpreter) evalBinary(n *ast.BinaryOp) (Value, error) {
	left, err := in.eval(n.Left)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case token.And:
		if !Truthy(left) {
			return Boolean(false), nil
		}
		right, err := in.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return Boolean(Truthy(right)), nil
	case token.Or:
		if Truthy(left) {
			return Boolean(true), nil
		}
		right, err := in.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return Boolean(Truthy(right)), nil
	}

	right, err := in.eval(n.Right)
	if err != nil {
		return nil, err
	}
	return binary(n.Operator, left, right, n.Position)
}

func (in *Interpreter) evalAssignment(n *ast.Assignment) (Value, error) {
	switch target := n.Target.(type) {
	case *ast.Identifier:
		v, err := in.eval(n.Value)
		if err != nil {
			return nil, err
		}
		if !in.env.Assign(target.Name, v) {
			return nil, newError(ErrUndefinedVariable, target.Position, "undefined variable '%s'", target.Name)
		}
		return v, nil

	case *ast.MemberAccess:
		object, err := in.eval(target.Object)
		if err != nil {
			return nil, err
		}
		m, ok := object.(*Map)
		if !ok {
			return nil, newError(ErrInvalidTarget, n.Position, "cannot set member '%s' on %s", target.Member, kindOf(object))
		}
		v, err := in.eval(n.Value)
		if err != nil {
			return nil, err
		}
		m.Set(target.Member, v)
		return v, nil

	case *ast.ArrayAccess:
		object, err := in.eval(target.Object)
		if err != nil {
			return nil, err
		}
		index, err := in.eval(target.Index)
		if err != nil {
			return nil, err
		}
		v, err := in.eval(n.Value)
		if err != nil {
			return nil, err
		}
		if err := setIndex(object, index, v, n.Position); err != nil {
			return nil, err
		}
		return v, nil
	}

	return nil, newError(ErrInvalidTarget, n.Position, "invalid assignment target")
}

func (in *Interpreter) evalCall(n *ast.FunctionCall) (Value, error) {
	callee, err := in.resolveCallee(n)
	if err != nil {
		return nil, err
	}

	args := make([]Value, len(n.Arguments))
	for i, arg := range n.Arguments {
		v, err := in.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	return in.call(callee, args, n.Position)
}

// resolveCallee finds what a call refers to: a callable bound in scope
// first, then the registry by the full dotted name. A scope binding that is
// not callable does not hide a builtin of the same name.
func (in *Interpreter) resolveCallee(n *ast.FunctionCall) (*Callable, error) {
	if n.Name == "" {
		v, err := in.eval(n.Callee)
		if err != nil {
			return nil, err
		}
		return in.asCallable(v, kindOf(v), n.Position)
	}

	root, _, _ := strings.Cut(n.Name, ".")
	if _, inScope := in.env.Get(root); !inScope {
		if fn, ok := in.builtins.Lookup(n.Name); ok {
			return &Callable{Name: n.Name, Builtin: fn}, nil
		}
		return nil, in.undefinedFunction(n.Name, n.Callee.Pos())
	}

	v, err := in.eval(n.Callee)
	if err == nil {
		if fn, ok := v.(*Callable); ok {
			return fn, nil
		}
	}
	if fn, ok := in.builtins.Lookup(n.Name); ok {
		return &Callable{Name: n.Name, Builtin: fn}, nil
	}
	if err != nil {
		return nil, err
	}
	return in.asCallable(v, n.Name, n.Position)
}

func (in *Interpreter) asCallable(v Value, name string, pos token.Position) (*Callable, error) {
	fn, ok := v.(*Callable)
	if !ok {
		return nil, newError(ErrNotCallable, pos, "'%s' is not callable", name)
	}
	return fn, nil
}

func (in *Interpreter) undefinedFunction(name string, pos token.Position) error {
	msg := fmt.Sprintf("undefined function '%s'", name)
	if matches := fuzzy.Find(name, in.builtins.Names()); len(matches) > 0 {
		msg += fmt.Sprintf(" (did you mean '%s'?)", matches[0].Str)
	}
	return &Error{Kind: ErrUndefinedFunction, Pos: pos, Msg: msg}
}

// call invokes a builtin or closure
func (in *Interpreter) call(fn *Callable, args []Value, pos token.Position) (Value, error) {
	if err := in.checkContext(pos); err != nil {
		return nil, err
	}

	in.callDepth++
	defer func() { in.callDepth-- }()
	if in.maxCallDepth > 0 && in.callDepth > in.maxCallDepth {
		return nil, newError(ErrResourceExhausted, pos, "maximum call depth (%d) exceeded", in.maxCallDepth)
	}

	if fn.IsBuiltin() {
		return in.callBuiltin(fn, args, pos)
	}

	if len(args) != len(fn.Params) {
		name := fn.Name
		if name == "" {
			name = "anonymous function"
		}
		return nil, newError(ErrArity, pos, "%s() expects %d arguments, got %d", name, len(fn.Params), len(args))
	}

	env := NewEnclosedEnvironment(fn.Env)
	for i, param := range fn.Params {
		env.Define(param, args[i])
	}

	sig, v, err := in.execBlock(fn.Body.Statements, env)
	if err != nil {
		return nil, err
	}
	if sig == signalReturn {
		return v, nil
	}
	return Null, nil
}

func (in *Interpreter) callBuiltin(fn *Callable, args []Value, pos token.Position) (Value, error) {
	call := &Call{
		Name:   fn.Name,
		Pos:    pos,
		Logger: in.logger,
		interp: in,
	}

	v, err := fn.Builtin(call, args)
	if err != nil {
		var rtErr *Error
		if errors.As(err, &rtErr) {
			if rtErr.Pos.Line == 0 {
				rtErr.Pos = pos
			}
			return nil, rtErr
		}
		return nil, &Error{
			Kind:  ErrBuiltin,
			Pos:   pos,
			Msg:   fmt.Sprintf("%s() failed: %v", fn.Name, err),
			cause: err,
		}
	}
	if v == nil {
		return Null, nil
	}
	return v, nil
}
