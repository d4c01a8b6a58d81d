package builtins

import (
	"fmt"
	"math"

	"github.com/arijanluiken/tradescript/internal/interpreter"
)

func checkArity(name string, args []interpreter.Value, min, max int) error {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return nil
	}
	var expected string
	switch {
	case max < 0:
		expected = fmt.Sprintf("at least %d", min)
	case min == max:
		expected = fmt.Sprintf("%d", min)
	default:
		expected = fmt.Sprintf("%d to %d", min, max)
	}
	return interpreter.ArityError(name, expected, len(args))
}

func numberArg(name string, args []interpreter.Value, i int) (float64, error) {
	n, ok := args[i].(interpreter.Number)
	if !ok {
		return 0, interpreter.ArgumentError(name, i, "a number", args[i])
	}
	return float64(n), nil
}

// periodArg reads a positive whole number, or def when the argument is absent
func periodArg(name string, args []interpreter.Value, i, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	f, err := numberArg(name, args, i)
	if err != nil {
		return 0, err
	}
	if f < 1 || f != math.Trunc(f) {
		return 0, interpreter.ArgumentError(name, i, "a positive integer", args[i])
	}
	return int(f), nil
}

func floatArg(name string, args []interpreter.Value, i int, def float64) (float64, error) {
	if i >= len(args) {
		return def, nil
	}
	return numberArg(name, args, i)
}

func stringArg(name string, args []interpreter.Value, i int) (string, error) {
	s, ok := args[i].(interpreter.String)
	if !ok {
		return "", interpreter.ArgumentError(name, i, "a string", args[i])
	}
	return string(s), nil
}

// seriesArg reads a series or an array of numbers. Null array elements
// become NaN.
func seriesArg(name string, args []interpreter.Value, i int) ([]float64, error) {
	switch v := args[i].(type) {
	case *interpreter.Series:
		return v.Values(), nil
	case *interpreter.Array:
		out := make([]float64, len(v.Elements))
		for j, e := range v.Elements {
			switch n := e.(type) {
			case interpreter.Number:
				out[j] = float64(n)
			case interpreter.NullValue:
				out[j] = math.NaN()
			default:
				return nil, interpreter.ArgumentError(name, i, "a series or array of numbers", args[i])
			}
		}
		return out, nil
	}
	return nil, interpreter.ArgumentError(name, i, "a series", args[i])
}

// seriesArgs reads consecutive series arguments that must share a length
func seriesArgs(name string, args []interpreter.Value, from, count int) ([][]float64, error) {
	out := make([][]float64, count)
	for k := 0; k < count; k++ {
		s, err := seriesArg(name, args, from+k)
		if err != nil {
			return nil, err
		}
		if k > 0 && len(s) != len(out[0]) {
			return nil, interpreter.NewError(interpreter.ErrArgumentType,
				"%s() series arguments must have the same length, got %d and %d", name, len(out[0]), len(s))
		}
		out[k] = s
	}
	return out, nil
}

func series(values []float64) *interpreter.Series {
	return interpreter.NewSeries(values)
}

type field struct {
	name   string
	values []float64
}

// seriesRecord builds the map returned by multi-output indicators
func seriesRecord(fields ...field) *interpreter.Map {
	m := interpreter.NewMap()
	for _, f := range fields {
		m.Set(f.name, series(f.values))
	}
	return m
}
