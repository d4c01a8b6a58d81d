package builtins

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/interpreter"
)

func (r *Registry) registerCore() {
	r.register("len", CategoryCore, "len(value)", builtinLen)
	r.register("str", CategoryCore, "str(value)", builtinStr)
	r.register("num", CategoryCore, "num(value)", builtinNum)
	r.register("na", CategoryCore, "na(value)", builtinNA)
	r.register("nz", CategoryCore, "nz(value, replacement=0)", builtinNZ)
	r.register("series", CategoryCore, "series(values...)", builtinSeries)
	r.register("array", CategoryCore, "array(values...)", builtinArray)
	r.register("push", CategoryCore, "push(array, value)", builtinPush)
	r.register("keys", CategoryCore, "keys(map)", builtinKeys)
	r.register("print", CategoryCore, "print(values...)", builtinPrint)
	r.register("plot", CategoryCore, "plot(name, value)", builtinPlot)
	r.register("log", CategoryCore, "log(level, values...)", builtinLog)

	for name, fn := range mathFuncs() {
		r.register(name, CategoryCore, name+"(...)", fn)
	}
}

func (r *Registry) registerMath() {
	for name, fn := range mathFuncs() {
		r.register("math."+name, CategoryMath, "math."+name+"(...)", fn)
	}
	r.register("math.log", CategoryMath, "math.log(x)", unaryMath("math.log", math.Log))
	r.register("math.exp", CategoryMath, "math.exp(x)", unaryMath("math.exp", math.Exp))
}

// mathFuncs are available both bare and under the math. prefix
func mathFuncs() map[string]interpreter.BuiltinFunc {
	return map[string]interpreter.BuiltinFunc{
		"abs":   unaryMath("abs", math.Abs),
		"floor": unaryMath("floor", math.Floor),
		"ceil":  unaryMath("ceil", math.Ceil),
		"sqrt":  unaryMath("sqrt", math.Sqrt),
		"round": builtinRound,
		"pow":   builtinPow,
		"min":   extremum("min", func(a, b float64) bool { return a < b }),
		"max":   extremum("max", func(a, b float64) bool { return a > b }),
	}
}

func unaryMath(name string, f func(float64) float64) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 1, 1); err != nil {
			return nil, err
		}
		x, err := numberArg(name, args, 0)
		if err != nil {
			return nil, err
		}
		return interpreter.Number(f(x)), nil
	}
}

func builtinRound(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("round", args, 1, 2); err != nil {
		return nil, err
	}
	x, err := numberArg("round", args, 0)
	if err != nil {
		return nil, err
	}
	precision, err := floatArg("round", args, 1, 0)
	if err != nil {
		return nil, err
	}

	multiplier := math.Pow(10, math.Trunc(precision))
	return interpreter.Number(math.Round(x*multiplier) / multiplier), nil
}

func builtinPow(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("pow", args, 2, 2); err != nil {
		return nil, err
	}
	base, err := numberArg("pow", args, 0)
	if err != nil {
		return nil, err
	}
	exp, err := numberArg("pow", args, 1)
	if err != nil {
		return nil, err
	}
	return interpreter.Number(math.Pow(base, exp)), nil
}

// extremum accepts numbers, or a single series/array whose values are
// compared
func extremum(name string, better func(a, b float64) bool) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 1, -1); err != nil {
			return nil, err
		}

		var values []float64
		if len(args) == 1 {
			if _, isNumber := args[0].(interpreter.Number); !isNumber {
				s, err := seriesArg(name, args, 0)
				if err != nil {
					return nil, err
				}
				values = s
			}
		}
		if values == nil {
			for i := range args {
				x, err := numberArg(name, args, i)
				if err != nil {
					return nil, err
				}
				values = append(values, x)
			}
		}

		found := false
		best := 0.0
		for _, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if !found || better(v, best) {
				best = v
				found = true
			}
		}
		if !found {
			return interpreter.Null, nil
		}
		return interpreter.Number(best), nil
	}
}

func builtinLen(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *interpreter.Series:
		return interpreter.Number(v.Len()), nil
	case *interpreter.Array:
		return interpreter.Number(len(v.Elements)), nil
	case *interpreter.Map:
		return interpreter.Number(v.Len()), nil
	case interpreter.String:
		return interpreter.Number(len([]rune(string(v)))), nil
	}
	return nil, interpreter.ArgumentError("len", 0, "a series, array, map or string", args[0])
}

func builtinStr(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("str", args, 1, 1); err != nil {
		return nil, err
	}
	return interpreter.String(args[0].String()), nil
}

func builtinNum(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("num", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case interpreter.Number:
		return v, nil
	case interpreter.Boolean:
		if v {
			return interpreter.Number(1), nil
		}
		return interpreter.Number(0), nil
	case interpreter.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return interpreter.Null, nil
		}
		return interpreter.Number(f), nil
	case *interpreter.Series:
		return v.At(0), nil
	}
	return interpreter.Null, nil
}

func builtinNA(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("na", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case interpreter.NullValue:
		return interpreter.Boolean(true), nil
	case interpreter.Number:
		return interpreter.Boolean(math.IsNaN(float64(v))), nil
	}
	return interpreter.Boolean(false), nil
}

func builtinNZ(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("nz", args, 1, 2); err != nil {
		return nil, err
	}
	var replacement interpreter.Value = interpreter.Number(0)
	if len(args) == 2 {
		replacement = args[1]
	}
	switch v := args[0].(type) {
	case interpreter.NullValue:
		return replacement, nil
	case interpreter.Number:
		if math.IsNaN(float64(v)) {
			return replacement, nil
		}
	}
	return args[0], nil
}

func builtinSeries(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if len(args) == 1 {
		if _, isNumber := args[0].(interpreter.Number); !isNumber {
			values, err := seriesArg("series", args, 0)
			if err != nil {
				return nil, err
			}
			return series(values), nil
		}
	}

	values := make([]float64, len(args))
	for i := range args {
		x, err := numberArg("series", args, i)
		if err != nil {
			return nil, err
		}
		values[i] = x
	}
	return series(values), nil
}

func builtinArray(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	elems := make([]interpreter.Value, len(args))
	copy(elems, args)
	return interpreter.NewArray(elems...), nil
}

func builtinPush(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("push", args, 2, 2); err != nil {
		return nil, err
	}
	switch target := args[0].(type) {
	case *interpreter.Array:
		target.Elements = append(target.Elements, args[1])
		return target, nil
	case *interpreter.Series:
		x, err := numberArg("push", args, 1)
		if err != nil {
			return nil, err
		}
		target.Push(x)
		return target, nil
	}
	return nil, interpreter.ArgumentError("push", 0, "an array or series", args[0])
}

func builtinKeys(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("keys", args, 1, 1); err != nil {
		return nil, err
	}
	m, ok := args[0].(*interpreter.Map)
	if !ok {
		return nil, interpreter.ArgumentError("keys", 0, "a map", args[0])
	}
	keys := m.Keys()
	elems := make([]interpreter.Value, len(keys))
	for i, k := range keys {
		elems[i] = interpreter.String(k)
	}
	return interpreter.NewArray(elems...), nil
}

func joinValues(args []interpreter.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

func builtinPrint(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	line := joinValues(args)
	call.Print(line)
	call.Logger.Debug().Str("line", line).Msg("Script output")
	return interpreter.Null, nil
}

func builtinPlot(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("plot", args, 2, 2); err != nil {
		return nil, err
	}
	name, err := stringArg("plot", args, 0)
	if err != nil {
		return nil, err
	}
	call.Plot(name, args[1])
	return interpreter.Null, nil
}

// builtinLog writes through the execution logger. The first argument is a
// level name when it parses as one; otherwise the message is logged at info.
func builtinLog(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("log", args, 1, -1); err != nil {
		return nil, err
	}

	level := zerolog.InfoLevel
	if s, ok := args[0].(interpreter.String); ok && len(args) > 1 {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(string(s))); err == nil && parsed != zerolog.NoLevel {
			level = parsed
			args = args[1:]
		}
	}

	call.Logger.WithLevel(level).
		Str("source", "script").
		Str("position", call.Pos.String()).
		Msg(joinValues(args))
	return interpreter.Null, nil
}
