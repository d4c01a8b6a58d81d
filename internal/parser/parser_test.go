package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/arijanluiken/tradescript/internal/ast"
	"github.com/arijanluiken/tradescript/internal/lexer"
	"github.com/arijanluiken/tradescript/internal/token"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	program, err := ParseString(src)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", src, err)
	}
	return program
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(program (+ 1 (* 2 3)))"},
		{"(1 + 2) * 3", "(program (* (+ 1 2) 3))"},
		{"10 - 4 - 3", "(program (- (- 10 4) 3))"},
		{"a = b = 2", "(program (= a (= b 2)))"},
		{"x -1", "(program (- x 1))"},
		{"x - -1", "(program (- x -1))"},
		{"x -1 -2.5 * y", "(program (- (- x 1) (* 2.5 y)))"},
		{"x -1\n-2", "(program (- x 1) -2)"},
		{"-x * 2", "(program (* (- x) 2))"},
		{"!a and b or c", "(program (or (and (not a) b) c))"},
		{"a >= 1 == b < 2", "(program (== (>= a 1) (< b 2)))"},
		{"7 % 3", "(program (% 7 3))"},
		{"close[1]", "(program (index close 1))"},
		{"sma(close, 14)[0]", "(program (index (call sma close 14) 0))"},
		{"math.abs(-5)", "(program (call math.abs -5))"},
		{"macd(close).signal", "(program (. (call macd close) signal))"},
		{"[1, 2, 3]", "(program (array 1 2 3))"},
		{"null == false", "(program (== null false))"},
		{`"a\tb"`, `(program "a\tb")`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ast.String(mustParse(t, tt.input))
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"var declaration",
			"var x = 10;",
			"(program (var x 10))",
		},
		{
			"var without initializer",
			"var x;",
			"(program (var x))",
		},
		{
			"if else",
			"if x > 1 { y = 1; } else { y = 2; }",
			"(program (if (> x 1) (block (= y 1)) (block (= y 2))))",
		},
		{
			"else if chain",
			"if a { b } else if c { d }",
			"(program (if a (block b) (if c (block d))))",
		},
		{
			"while",
			"while i < 3 { i = i + 1; }",
			"(program (while (< i 3) (block (= i (+ i 1)))))",
		},
		{
			"for loop",
			"for (var i = 0; i < 3; i = i + 1) { print(i); }",
			"(program (for (var i 0) (< i 3) (= i (+ i 1)) (block (call print i))))",
		},
		{
			"for with empty clauses",
			"for (;;) { break; }",
			"(program (for nil nil nil (block (break))))",
		},
		{
			"function declaration",
			"fn add(a, b) { return a + b; }",
			"(program (fn add (a b) (block (return (+ a b)))))",
		},
		{
			"anonymous function",
			"var f = fn(x) { return x * 2; };",
			"(program (var f (fn (x) (block (return (* x 2))))))",
		},
		{
			"bare return",
			"fn f() { return }",
			"(program (fn f () (block (return))))",
		},
		{
			"semicolons optional at line end",
			"var a = 1\nvar b = a\nreturn b",
			"(program (var a 1) (var b a) (return b))",
		},
		{
			"continue inside loop",
			"while true { continue }",
			"(program (while true (block (continue))))",
		},
		{
			"interpolated string",
			`print("rsi={{ r }} ok")`,
			`(program (call print (interp "rsi=" r " ok")))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ast.String(mustParse(t, tt.input))
			if got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestAssignmentTargets(t *testing.T) {
	valid := []string{"x = 1", "close[0] = 5", "m.field = 2"}
	for _, src := range valid {
		if _, err := ParseString(src); err != nil {
			t.Errorf("%q: unexpected error: %v", src, err)
		}
	}

	invalid := []string{"1 = x", "f() = 2", "a + b = 3"}
	for _, src := range invalid {
		_, err := ParseString(src)
		var list ErrorList
		if !errors.As(err, &list) {
			t.Fatalf("%q: expected ErrorList, got %v", src, err)
		}
		if list[0].Msg != "invalid assignment target" {
			t.Errorf("%q: expected invalid assignment target, got %q", src, list[0].Msg)
		}
		if list[0].Where != "at '='" {
			t.Errorf("%q: expected error at '=', got %q", src, list[0].Where)
		}
	}
}

func TestErrorRecovery(t *testing.T) {
	src := "var a = 1; var = 2; var b = (3; var c = 4;"
	program, err := ParseString(src)

	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected ErrorList, got %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(list), list)
	}
	if list[0].Msg != "expected variable name" {
		t.Errorf("expected variable name error, got %q", list[0].Msg)
	}
	if list[1].Msg != "expected ')' after expression" {
		t.Errorf("expected missing paren error, got %q", list[1].Msg)
	}

	got := ast.String(program)
	if got != "(program (var a 1) (var c 4))" {
		t.Errorf("expected surviving statements, got %s", got)
	}
}

func TestErrorRecoveryInsideBlock(t *testing.T) {
	src := "if x {\n var = 1\n y = 2\n}\nz = 3"
	program, err := ParseString(src)
	if err == nil {
		t.Fatal("expected syntax error")
	}
	got := ast.String(program)
	if got != "(program (if x (block (= y 2))) (= z 3))" {
		t.Errorf("expected recovered program, got %s", got)
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"var x = ", "line 1:9: expected expression at end"},
		{"(1 + 2", "line 1:7: expected ')' after expression at end"},
		{"x = )", "line 1:5: expected expression at ')'"},
		{"break;", "line 1:1: 'break' outside of loop at 'break'"},
		{"fn f() { while true { } continue }", "line 1:25: 'continue' outside of loop at 'continue'"},
		{"var a = 1 var b = 2", "line 1:11: expected ';' after variable declaration at 'var'"},
		{"for (i = 0 i < 1; i = i + 1) {}", "line 1:12: expected ';' after loop initializer at 'i'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseString(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			var list ErrorList
			if !errors.As(err, &list) {
				t.Fatalf("expected ErrorList, got %T", err)
			}
			if list[0].Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, list[0].Error())
			}
		})
	}
}

func TestBreakInsideNestedFunctionIsRejected(t *testing.T) {
	_, err := ParseString("while true { var f = fn() { break; }; }")
	if err == nil || !strings.Contains(err.Error(), "outside of loop") {
		t.Errorf("expected loop error, got %v", err)
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"", ")", "}", "{", "fn", "fn (", "for (", "if", "else", "var",
		"a.", "a[", "[1,", "f(1,", "\"{{\"", "\"{{ }}\"", "return return",
		"; ; ;", "x = = 1", "1 2 3",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("parser panicked: %v", r)
				}
			}()
			program, _ := ParseString(input)
			if program == nil {
				t.Error("expected a program even for invalid input")
			}
		})
	}
}

func TestPositions(t *testing.T) {
	program := mustParse(t, "var x = 1\n  y = x + 2")
	assign, ok := program.Statements[1].(*ast.ExpressionStatement).Expression.(*ast.Assignment)
	if !ok {
		t.Fatalf("expected assignment, got %T", program.Statements[1])
	}
	if assign.Pos().Line != 2 || assign.Pos().Column != 5 {
		t.Errorf("expected assignment at 2:5, got %s", assign.Pos())
	}
	if assign.Target.Pos().Column != 3 {
		t.Errorf("expected target at column 3, got %d", assign.Target.Pos().Column)
	}
}

func TestParseManyNegativeLiterals(t *testing.T) {
	const n = 5000
	src := "x" + strings.Repeat(" -1", n)

	tokens, err := lexer.Tokenize(src)
	if err != nil {
		t.Fatalf("failed to tokenize: %v", err)
	}
	original := make([]token.Token, len(tokens))
	copy(original, tokens)

	program, errs := Parse(tokens)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}

	depth := 0
	node := program.Statements[0]
	if stmt, ok := node.(*ast.ExpressionStatement); ok {
		node = stmt.Expression
	}
	for {
		op, ok := node.(*ast.BinaryOp)
		if !ok {
			break
		}
		if op.Operator != token.Minus {
			t.Fatalf("expected minus, got %s", op.Operator)
		}
		depth++
		node = op.Left
	}
	if depth != n {
		t.Errorf("expected %d subtractions, got %d", n, depth)
	}

	for i := range tokens {
		if tokens[i] != original[i] {
			t.Fatalf("expected input tokens to be left unchanged, token %d became %v", i, tokens[i])
		}
	}
}
