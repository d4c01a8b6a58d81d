package interpreter

import (
	"errors"
	"fmt"

	"github.com/arijanluiken/tradescript/internal/token"
)

// Runtime error kinds. Every *Error wraps exactly one of these.
var (
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrUndefinedFunction = errors.New("undefined function")
	ErrArity             = errors.New("wrong number of arguments")
	ErrArgumentType      = errors.New("invalid argument type")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrIndex             = errors.New("invalid index")
	ErrInvalidTarget     = errors.New("invalid assignment target")
	ErrNotCallable       = errors.New("not callable")
	ErrResourceExhausted = errors.New("resource limit exceeded")
	ErrCancelled         = errors.New("execution cancelled")
	ErrBuiltin           = errors.New("builtin failed")
)

// Error is a runtime error raised while evaluating a script. Execution stops
// at the first one.
type Error struct {
	Kind  error
	Msg   string
	Pos   token.Position
	cause error
}

func (e *Error) Error() string {
	if e.Pos.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// NewError builds an unpositioned runtime error. The interpreter fills in
// the position of the call that raised it.
func NewError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func newError(kind error, pos token.Position, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// ArityError reports a call with the wrong number of arguments. expected is
// free text such as "2" or "1 to 3".
func ArityError(name, expected string, got int) *Error {
	return NewError(ErrArity, "%s() expects %s arguments, got %d", name, expected, got)
}

// ArgumentError reports an argument of the wrong type. index is zero based.
func ArgumentError(name string, index int, expected string, got Value) *Error {
	return NewError(ErrArgumentType, "%s() argument %d must be %s, got %s", name, index+1, expected, kindOf(got))
}

func kindOf(v Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}
