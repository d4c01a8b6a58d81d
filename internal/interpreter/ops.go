package interpreter

import (
	"math"
	"sort"

	"github.com/arijanluiken/tradescript/internal/token"
)

func unary(op token.Kind, operand Value, pos token.Position) (Value, error) {
	switch op {
	case token.Not:
		return Boolean(!Truthy(operand)), nil
	case token.Minus:
		n, ok := operand.(Number)
		if !ok {
			return nil, newError(ErrTypeMismatch, pos, "cannot negate %s", kindOf(operand))
		}
		return -n, nil
	}
	return nil, newError(ErrTypeMismatch, pos, "unknown unary operator %s", op)
}

func binary(op token.Kind, left, right Value, pos token.Position) (Value, error) {
	switch op {
	case token.Equal:
		return Boolean(Equal(left, right)), nil
	case token.NotEqual:
		return Boolean(!Equal(left, right)), nil
	case token.Greater, token.GreaterEqual, token.Less, token.LessEqual:
		return compare(op, left, right, pos)
	}

	if op == token.Plus {
		if l, ok := left.(String); ok {
			if r, ok := right.(String); ok {
				return l + r, nil
			}
		}
	}

	l, lok := left.(Number)
	r, rok := right.(Number)
	if !lok || !rok {
		return nil, newError(ErrTypeMismatch, pos, "unsupported operand types for %s: %s and %s", op, kindOf(left), kindOf(right))
	}

	switch op {
	case token.Plus:
		return l + r, nil
	case token.Minus:
		return l - r, nil
	case token.Star:
		return l * r, nil
	case token.Slash:
		if r == 0 {
			return nil, newError(ErrDivisionByZero, pos, "division by zero")
		}
		return l / r, nil
	case token.Percent:
		if r == 0 {
			return nil, newError(ErrDivisionByZero, pos, "modulo by zero")
		}
		return Number(math.Mod(float64(l), float64(r))), nil
	}
	return nil, newError(ErrTypeMismatch, pos, "unknown binary operator %s", op)
}

func compare(op token.Kind, left, right Value, pos token.Position) (Value, error) {
	if left == nil || right == nil || left.Kind() != right.Kind() {
		return nil, newError(ErrTypeMismatch, pos, "cannot compare %s and %s", kindOf(left), kindOf(right))
	}
	return Boolean(ordered(op, order(left, right))), nil
}

// kindRank orders values of different kinds inside arrays, maps and series
var kindRank = [...]int{
	NullKind:     0,
	BooleanKind:  1,
	NumberKind:   2,
	StringKind:   3,
	SeriesKind:   4,
	CallableKind: 5,
	ArrayKind:    6,
	MapKind:      7,
}

// order is a total ordering over values. Series compare by their current
// value, arrays element-wise then by length, maps by their sorted
// key/value pairs, and callables by name with builtins first.
func order(a, b Value) int {
	if a.Kind() != b.Kind() {
		return compareOrdered(kindRank[a.Kind()], kindRank[b.Kind()])
	}

	switch x := a.(type) {
	case Number:
		return compareOrdered(x, b.(Number))
	case String:
		return compareOrdered(x, b.(String))
	case Boolean:
		return compareOrdered(boolRank(x), boolRank(b.(Boolean)))
	case NullValue:
		return 0
	case *Series:
		return order(x.At(0), b.(*Series).At(0))
	case *Array:
		y := b.(*Array)
		for i := 0; i < len(x.Elements) && i < len(y.Elements); i++ {
			if c := order(x.Elements[i], y.Elements[i]); c != 0 {
				return c
			}
		}
		return compareOrdered(len(x.Elements), len(y.Elements))
	case *Map:
		y := b.(*Map)
		xk, yk := x.Keys(), y.Keys()
		sort.Strings(xk)
		sort.Strings(yk)
		for i := 0; i < len(xk) && i < len(yk); i++ {
			if c := compareOrdered(String(xk[i]), String(yk[i])); c != 0 {
				return c
			}
			if c := order(x.fields[xk[i]], y.fields[yk[i]]); c != 0 {
				return c
			}
		}
		return compareOrdered(len(xk), len(yk))
	case *Callable:
		y := b.(*Callable)
		if x.IsBuiltin() != y.IsBuiltin() {
			if x.IsBuiltin() {
				return -1
			}
			return 1
		}
		return compareOrdered(String(x.Name), String(y.Name))
	}
	return 0
}

func compareOrdered[T Number | String | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b Boolean) int {
	if b {
		return 1
	}
	return 0
}

func ordered(op token.Kind, cmp int) bool {
	switch op {
	case token.Greater:
		return cmp > 0
	case token.GreaterEqual:
		return cmp >= 0
	case token.Less:
		return cmp < 0
	}
	return cmp <= 0
}

// intIndex converts an index value to a non-negative integer
func intIndex(index Value, pos token.Position) (int, error) {
	n, ok := index.(Number)
	if !ok {
		return 0, newError(ErrIndex, pos, "index must be a number, got %s", kindOf(index))
	}
	f := float64(n)
	if f < 0 {
		return 0, newError(ErrIndex, pos, "negative index %s", n)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, newError(ErrIndex, pos, "index %s is not an integer", n)
	}
	return int(f), nil
}

func indexValue(object, index Value, pos token.Position) (Value, error) {
	switch obj := object.(type) {
	case *Series:
		offset, err := intIndex(index, pos)
		if err != nil {
			return nil, err
		}
		return obj.At(offset), nil

	case *Array:
		i, err := intIndex(index, pos)
		if err != nil {
			return nil, err
		}
		if i >= len(obj.Elements) {
			return nil, newError(ErrIndex, pos, "index %d out of range for array of length %d", i, len(obj.Elements))
		}
		return obj.Elements[i], nil

	case *Map:
		key, ok := index.(String)
		if !ok {
			return nil, newError(ErrIndex, pos, "map key must be a string, got %s", kindOf(index))
		}
		if v, ok := obj.Get(string(key)); ok {
			return v, nil
		}
		return Null, nil

	case String:
		i, err := intIndex(index, pos)
		if err != nil {
			return nil, err
		}
		runes := []rune(string(obj))
		if i >= len(runes) {
			return nil, newError(ErrIndex, pos, "index %d out of range for string of length %d", i, len(runes))
		}
		return String(runes[i]), nil
	}

	return nil, newError(ErrTypeMismatch, pos, "cannot index %s", kindOf(object))
}

// setIndex writes through an index expression. A series only accepts a write
// to offset 0, which records the value for the newest bar.
func setIndex(object, index, v Value, pos token.Position) error {
	switch obj := object.(type) {
	case *Series:
		offset, err := intIndex(index, pos)
		if err != nil {
			return err
		}
		if offset != 0 {
			return newError(ErrIndex, pos, "cannot write series history at offset %d", offset)
		}
		switch val := v.(type) {
		case Number:
			obj.Push(float64(val))
		case NullValue:
			obj.Push(math.NaN())
		default:
			return newError(ErrTypeMismatch, pos, "cannot store %s in a series", kindOf(v))
		}
		return nil

	case *Array:
		i, err := intIndex(index, pos)
		if err != nil {
			return err
		}
		if i >= len(obj.Elements) {
			return newError(ErrIndex, pos, "index %d out of range for array of length %d", i, len(obj.Elements))
		}
		obj.Elements[i] = v
		return nil

	case *Map:
		key, ok := index.(String)
		if !ok {
			return newError(ErrIndex, pos, "map key must be a string, got %s", kindOf(index))
		}
		obj.Set(string(key), v)
		return nil
	}

	return newError(ErrInvalidTarget, pos, "cannot assign into %s", kindOf(object))
}

func member(object Value, name string, pos token.Position) (Value, error) {
	switch obj := object.(type) {
	case *Map:
		if v, ok := obj.Get(name); ok {
			return v, nil
		}
		return Null, nil
	case *Series:
		if name == "length" {
			return Number(obj.Len()), nil
		}
	case *Array:
		if name == "length" {
			return Number(len(obj.Elements)), nil
		}
	case String:
		if name == "length" {
			return Number(len([]rune(string(obj)))), nil
		}
	}
	return nil, newError(ErrTypeMismatch, pos, "%s has no member '%s'", kindOf(object), name)
}
