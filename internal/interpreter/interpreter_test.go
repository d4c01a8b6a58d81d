package interpreter

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/arijanluiken/tradescript/internal/parser"
)

// fakeBuiltins is a minimal registry for evaluator tests
type fakeBuiltins map[string]BuiltinFunc

func (f fakeBuiltins) Lookup(name string) (BuiltinFunc, bool) {
	fn, ok := f[name]
	return fn, ok
}

func (f fakeBuiltins) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func testBuiltins() fakeBuiltins {
	return fakeBuiltins{
		"print": func(call *Call, args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			call.Print(strings.Join(parts, " "))
			return Null, nil
		},
		"plot": func(call *Call, args []Value) (Value, error) {
			if len(args) != 2 {
				return nil, ArityError("plot", "2", len(args))
			}
			name, ok := args[0].(String)
			if !ok {
				return nil, ArgumentError("plot", 0, "a string", args[0])
			}
			call.Plot(string(name), args[1])
			return Null, nil
		},
		"sma": func(call *Call, args []Value) (Value, error) {
			return Number(42), nil
		},
		"math.abs": func(call *Call, args []Value) (Value, error) {
			n, ok := args[0].(Number)
			if !ok {
				return nil, ArgumentError("math.abs", 0, "a number", args[0])
			}
			if n < 0 {
				return -n, nil
			}
			return n, nil
		},
		"fail": func(call *Call, args []Value) (Value, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
}

func run(t *testing.T, src string, opts ...Option) (*Result, error) {
	t.Helper()
	program, err := parser.ParseString(src)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", src, err)
	}
	in := New(testBuiltins(), opts...)
	in.Define("close", NewSeries([]float64{10, 11, 12, 13, 14}))
	return in.Execute(program)
}

func mustRun(t *testing.T, src string, opts ...Option) *Result {
	t.Helper()
	result, err := run(t, src, opts...)
	if err != nil {
		t.Fatalf("failed to execute %q: %v", src, err)
	}
	return result
}

func TestEvaluateExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected Value
	}{
		{"1 + 2 * 3", Number(7)},
		{"8 - 3 - 2", Number(3)},
		{"(1 + 2) * 3", Number(9)},
		{"10 / 4", Number(2.5)},
		{"7 % 3", Number(1)},
		{"-2 * 3", Number(-6)},
		{`"trade" + "script"`, String("tradescript")},
		{"1 < 2", Boolean(true)},
		{`"a" < "b"`, Boolean(true)},
		{"2 >= 3", Boolean(false)},
		{"1 == 1", Boolean(true)},
		{`1 == "1"`, Boolean(false)},
		{"null == null", Boolean(true)},
		{"null == false", Boolean(false)},
		{"true != false", Boolean(true)},
		{"not null", Boolean(true)},
		{"!0", Boolean(false)},
		{"1 and 2", Boolean(true)},
		{"null or false", Boolean(false)},
		{"close[0]", Number(14)},
		{"close[1]", Number(13)},
		{"close[10]", Null},
		{"close.length", Number(5)},
		{"[1, 2, 3][1]", Number(2)},
		{"[1, 2, 3].length", Number(3)},
		{`"abc"[2]`, String("c")},
		{"sma(close, 14)", Number(42)},
		{"math.abs(-3)", Number(3)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := mustRun(t, tt.input)
			if !Equal(result.Value, tt.expected) {
				t.Errorf("expected %s (%s), got %s (%s)", tt.expected, tt.expected.Kind(), result.Value, result.Value.Kind())
			}
		})
	}
}

func TestBlockScoping(t *testing.T) {
	t.Run("inner declaration shadows", func(t *testing.T) {
		result := mustRun(t, "var x = 1; { var x = 2; } x")
		if !Equal(result.Value, Number(1)) {
			t.Errorf("expected 1, got %s", result.Value)
		}
	})

	t.Run("assignment reaches outer scope", func(t *testing.T) {
		result := mustRun(t, "var x = 1; { x = 2; } x")
		if !Equal(result.Value, Number(2)) {
			t.Errorf("expected 2, got %s", result.Value)
		}
	})

	t.Run("block bindings are dropped on exit", func(t *testing.T) {
		_, err := run(t, "{ var y = 1; } y")
		if !errors.Is(err, ErrUndefinedVariable) {
			t.Errorf("expected undefined variable, got %v", err)
		}
	})

	t.Run("redeclaration in the same scope replaces", func(t *testing.T) {
		result := mustRun(t, "var x = 1; var x = 5; x")
		if !Equal(result.Value, Number(5)) {
			t.Errorf("expected 5, got %s", result.Value)
		}
	})
}

func TestAssignmentToUndeclaredVariable(t *testing.T) {
	result, err := run(t, "print(\"before\")\nmissing = 3\nprint(\"after\")")
	if result != nil {
		t.Error("expected no result after a runtime error")
	}
	var rtErr *Error
	if !errors.As(err, &rtErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Errorf("expected ErrUndefinedVariable, got %v", rtErr.Kind)
	}
	if rtErr.Pos.Line != 2 {
		t.Errorf("expected error on line 2, got %d", rtErr.Pos.Line)
	}
}

func TestLoops(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"while", "var i = 0; var sum = 0; while i < 5 { sum = sum + i; i = i + 1; } return sum", 10},
		{"for", "var sum = 0; for (var i = 1; i <= 4; i = i + 1) { sum = sum + i; } return sum", 10},
		{"break", "var i = 0; while true { if i == 3 { break } i = i + 1 } return i", 3},
		{"continue", "var odd = 0; for (var i = 0; i < 6; i = i + 1) { if i % 2 == 0 { continue } odd = odd + 1 } return odd", 3},
		{"condition checked first", "var n = 0; while false { n = 1 } return n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mustRun(t, tt.input)
			if !Equal(result.Value, Number(tt.expected)) {
				t.Errorf("expected %v, got %s", tt.expected, result.Value)
			}
		})
	}
}

func TestForLoopVariableIsScoped(t *testing.T) {
	_, err := run(t, "for (var i = 0; i < 1; i = i + 1) {} i")
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Errorf("expected loop variable to be out of scope, got %v", err)
	}
}

func TestFunctions(t *testing.T) {
	t.Run("named function", func(t *testing.T) {
		result := mustRun(t, "fn add(a, b) { return a + b } add(2, 3)")
		if !Equal(result.Value, Number(5)) {
			t.Errorf("expected 5, got %s", result.Value)
		}
	})

	t.Run("recursion", func(t *testing.T) {
		result := mustRun(t, "fn fib(n) { if n < 2 { return n } return fib(n - 1) + fib(n - 2) } fib(10)")
		if !Equal(result.Value, Number(55)) {
			t.Errorf("expected 55, got %s", result.Value)
		}
	})

	t.Run("closure captures defining scope", func(t *testing.T) {
		src := `
fn counter() {
	var n = 0
	return fn() { n = n + 1; return n }
}
var next = counter()
next()
next()
return next()`
		result := mustRun(t, src)
		if !Equal(result.Value, Number(3)) {
			t.Errorf("expected 3, got %s", result.Value)
		}
	})

	t.Run("function without return yields null", func(t *testing.T) {
		result := mustRun(t, "fn noop() {} noop()")
		if result.Value != Null {
			t.Errorf("expected null, got %s", result.Value)
		}
	})

	t.Run("closure shadows builtin", func(t *testing.T) {
		result := mustRun(t, "fn sma(a, b) { return 1 } sma(close, 3)")
		if !Equal(result.Value, Number(1)) {
			t.Errorf("expected closure to win, got %s", result.Value)
		}
	})

	t.Run("variable does not hide builtin", func(t *testing.T) {
		result := mustRun(t, "var sma = 1\nvar x = sma(close, 3)\nx + sma")
		if !Equal(result.Value, Number(43)) {
			t.Errorf("expected 43, got %s", result.Value)
		}
	})

	t.Run("variable named after builtin reassigned from it", func(t *testing.T) {
		result := mustRun(t, "var sma = sma(close, 14)\nsma = sma(close, 14) + sma\nsma")
		if !Equal(result.Value, Number(84)) {
			t.Errorf("expected 84, got %s", result.Value)
		}
	})

	t.Run("variable named after dotted builtin", func(t *testing.T) {
		result := mustRun(t, "var math = [1, 2]\nmath.abs(-2) + math.length")
		if !Equal(result.Value, Number(4)) {
			t.Errorf("expected 4, got %s", result.Value)
		}
	})

	t.Run("arity mismatch", func(t *testing.T) {
		_, err := run(t, "fn f(a) { return a } f(1, 2)")
		if !errors.Is(err, ErrArity) {
			t.Errorf("expected ErrArity, got %v", err)
		}
	})

	t.Run("calling a number", func(t *testing.T) {
		_, err := run(t, "var x = 1; x()")
		if !errors.Is(err, ErrNotCallable) {
			t.Errorf("expected ErrNotCallable, got %v", err)
		}
	})
}

func TestUndefinedFunctionSuggestion(t *testing.T) {
	_, err := run(t, "smaa(close, 3)")
	if !errors.Is(err, ErrUndefinedFunction) {
		t.Fatalf("expected ErrUndefinedFunction, got %v", err)
	}
	if !strings.Contains(err.Error(), "undefined function 'smaa'") {
		t.Errorf("expected function name in message, got %q", err.Error())
	}

	_, err = run(t, "mth.abs(1)")
	if !errors.Is(err, ErrUndefinedFunction) {
		t.Fatalf("expected ErrUndefinedFunction, got %v", err)
	}
	if !strings.Contains(err.Error(), "did you mean 'math.abs'") {
		t.Errorf("expected suggestion, got %q", err.Error())
	}
}

func TestBuiltinErrors(t *testing.T) {
	t.Run("argument type", func(t *testing.T) {
		_, err := run(t, `math.abs("x")`)
		if !errors.Is(err, ErrArgumentType) {
			t.Errorf("expected ErrArgumentType, got %v", err)
		}
		var rtErr *Error
		if errors.As(err, &rtErr) && rtErr.Pos.Line != 1 {
			t.Errorf("expected call position to be filled in, got %s", rtErr.Pos)
		}
	})

	t.Run("failure is wrapped", func(t *testing.T) {
		_, err := run(t, "fail()")
		if !errors.Is(err, ErrBuiltin) {
			t.Errorf("expected ErrBuiltin, got %v", err)
		}
		if !strings.Contains(err.Error(), "upstream unavailable") {
			t.Errorf("expected cause in message, got %q", err.Error())
		}
	})
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  error
	}{
		{"1 / 0", ErrDivisionByZero},
		{"5 % 0", ErrDivisionByZero},
		{`1 + "a"`, ErrTypeMismatch},
		{`1 < "a"`, ErrTypeMismatch},
		{"close < [1]", ErrTypeMismatch},
		{"null < 1", ErrTypeMismatch},
		{"-true", ErrTypeMismatch},
		{"close[-1]", ErrIndex},
		{"close[1.5]", ErrIndex},
		{"[1][3]", ErrIndex},
		{"close[2] = 5", ErrIndex},
		{"undefinedThing + 1", ErrUndefinedVariable},
		{"var n = 1; n.x = 2", ErrInvalidTarget},
		{"var n = 1; n.x", ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := run(t, tt.input)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestComparisonOrdering(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"close > open", true},
		{"close < open", false},
		{"close >= close", true},
		{"warmup < open", true},
		{"warmup <= warmup", true},
		{"null <= null", true},
		{"null < null", false},
		{"false < true", true},
		{"[1] < [2]", true},
		{"[1, 2] > [1]", true},
		{"[1, 2] <= [1, 2]", true},
		{`[null, 1] < ["a"]`, true},
		{"fields < other", true},
		{"fields >= fields", true},
		{"fn a() {} fn b() {} a < b", true},
		{"fn a() {} sma < a", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			program, err := parser.ParseString(tt.input)
			if err != nil {
				t.Fatalf("failed to parse: %v", err)
			}

			fields := NewMap()
			fields.Set("a", Number(1))
			other := NewMap()
			other.Set("a", Number(2))

			in := New(testBuiltins())
			in.Define("close", NewSeries([]float64{10, 11, 12}))
			in.Define("open", NewSeries([]float64{10, 11, 11.5}))
			in.Define("warmup", NewSeries([]float64{math.NaN()}))
			in.Define("fields", fields)
			in.Define("other", other)

			result, err := in.Execute(program)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !Equal(result.Value, Boolean(tt.expected)) {
				t.Errorf("expected %v, got %s", tt.expected, result.Value)
			}
		})
	}
}

func TestSeriesWrite(t *testing.T) {
	result := mustRun(t, "var s = close; s[0] = 15; return s[0] + s[1]")
	if !Equal(result.Value, Number(29)) {
		t.Errorf("expected 29, got %s", result.Value)
	}
}

func TestStructuredValues(t *testing.T) {
	result := mustRun(t, "var a = [1, 2]; var b = a; b[0] = 9; return a[0]")
	if !Equal(result.Value, Number(9)) {
		t.Errorf("expected arrays to be shared, got %s", result.Value)
	}
}

func TestInterpolationAndOutput(t *testing.T) {
	result := mustRun(t, `var r = 28.5
print("rsi={{ r }} last={{ close[0] }}")
plot("rsi", r)`)

	if len(result.Output) != 1 || result.Output[0] != "rsi=28.5 last=14" {
		t.Errorf("expected interpolated output, got %v", result.Output)
	}
	if !Equal(result.Plots["rsi"], Number(28.5)) {
		t.Errorf("expected plot rsi=28.5, got %v", result.Plots["rsi"])
	}
}

func TestMaxIterations(t *testing.T) {
	_, err := run(t, "while true { }", WithMaxIterations(100))
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("expected ErrResourceExhausted, got %v", err)
	}
}

func TestMaxCallDepth(t *testing.T) {
	_, err := run(t, "fn down(n) { return down(n + 1) } down(0)", WithMaxCallDepth(50))
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("expected ErrResourceExhausted, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(t, "var i = 0; while true { i = i + 1 }", WithContext(ctx), WithMaxIterations(0))
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}

func TestResultJSON(t *testing.T) {
	result := mustRun(t, `plot("x", close); return [1, null, "a"]`)
	data, err := result.MarshalJSON()
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	expected := `{"value":[1,null,"a"],"output":[],"plots":{"x":[10,11,12,13,14]}}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}
