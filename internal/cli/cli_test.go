package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testEnv struct {
	dir    string
	config string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := `database:
  path: ` + filepath.Join(dir, "test.db") + `
logging:
  level: error
script:
  max_iterations: 10000
  max_call_depth: 64
  directory: ` + filepath.Join(dir, "scripts") + `
  extensions_dir: ` + filepath.Join(dir, "extensions") + `
  workers: 1
  cache_size: 8
feed:
  exchange: none
  default_interval: 1h
  default_limit: 100
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return &testEnv{dir: dir, config: path}
}

func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	exit := func(code int) {
		t.Fatalf("unexpected exit with code %d: %s", code, errOut.String())
	}
	err := Run(context.Background(), &out, &errOut, exit, append([]string{"--config", e.config}, args...)...)
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	env := setupEnv(t)

	t.Run("file", func(t *testing.T) {
		file := env.write(t, "hello.tsl", "print(\"hi\")\n1 + 2")
		out, err := env.run(t, "run", file)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "hi\n") {
			t.Errorf("expected printed output, got %q", out)
		}
		if !strings.Contains(out, "=> 3") {
			t.Errorf("expected value 3, got %q", out)
		}
	})

	t.Run("json with params", func(t *testing.T) {
		file := env.write(t, "double.tsl", "x * 2")
		out, err := env.run(t, "run", "--json", "-p", "x=4", file)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var resp map[string]interface{}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("failed to decode output %q: %v", out, err)
		}
		if resp["status"] != "success" {
			t.Errorf("expected success, got %v", resp["status"])
		}
		data := resp["data"].(map[string]interface{})
		if data["value"] != float64(8) {
			t.Errorf("expected value 8, got %v", data["value"])
		}
	})

	t.Run("bars file", func(t *testing.T) {
		file := env.write(t, "last.tsl", "close[0] + close[1]")
		bars := env.write(t, "bars.json", `[
			{"timestamp": "2024-01-01T00:00:00Z", "open": 1, "high": 2, "low": 1, "close": 1.5, "volume": 10},
			{"timestamp": "2024-01-01T01:00:00Z", "open": 2, "high": 3, "low": 2, "close": 2.5, "volume": 10}
		]`)
		out, err := env.run(t, "run", "--bars", bars, file)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "=> 4") {
			t.Errorf("expected value 4, got %q", out)
		}
		if !strings.Contains(out, "2 bars") {
			t.Errorf("expected bar count, got %q", out)
		}
	})

	t.Run("script error", func(t *testing.T) {
		file := env.write(t, "broken.tsl", "var a = 1\na / 0")
		out, err := env.run(t, "run", file)
		if !errors.Is(err, ErrScriptFailed) {
			t.Fatalf("expected ErrScriptFailed, got %v", err)
		}
		if !strings.Contains(out, "broken.tsl:2:") {
			t.Errorf("expected positioned diagnostic, got %q", out)
		}
	})

	t.Run("needs a source", func(t *testing.T) {
		if _, err := env.run(t, "run"); err == nil {
			t.Error("expected error without file or script")
		}
	})
}

func TestCheckCommand(t *testing.T) {
	env := setupEnv(t)
	good := env.write(t, "good.tsl", "var a = 1\na + 1")
	bad := env.write(t, "bad.tsl", "var = 1\nvar b = (2")

	out, err := env.run(t, "check", good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "good.tsl: ok") {
		t.Errorf("expected ok, got %q", out)
	}

	out, err = env.run(t, "check", good, bad)
	if !errors.Is(err, ErrScriptFailed) {
		t.Fatalf("expected ErrScriptFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 of 2 files") {
		t.Errorf("expected summary, got %v", err)
	}
	if !strings.Contains(out, "bad.tsl:1:") || !strings.Contains(out, "bad.tsl:2:") {
		t.Errorf("expected diagnostics on lines 1 and 2, got %q", out)
	}
}

func TestTokensCommand(t *testing.T) {
	env := setupEnv(t)
	file := env.write(t, "tokens.tsl", "sma(close, 3)")

	out, err := env.run(t, "tokens", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`BUILTIN("sma")`, `IDENT("close")`, `NUMBER("3")`, "EOF"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %q", want, out)
		}
	}

	bad := env.write(t, "unterminated.tsl", `"abc`)
	out, err = env.run(t, "tokens", bad)
	if !errors.Is(err, ErrScriptFailed) {
		t.Fatalf("expected ErrScriptFailed, got %v", err)
	}
	if !strings.Contains(out, "unterminated string") {
		t.Errorf("expected tokenize error, got %q", out)
	}
}

func TestASTCommand(t *testing.T) {
	env := setupEnv(t)
	file := env.write(t, "expr.tsl", "1 + 2 * 3")

	out, err := env.run(t, "ast", file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "(+ 1 (* 2 3))" {
		t.Errorf("expected (+ 1 (* 2 3)), got %q", out)
	}
}

func TestBuiltinsCommand(t *testing.T) {
	env := setupEnv(t)

	out, err := env.run(t, "builtins")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"core", "indicator", "sma(source, period)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %q", want, out)
		}
	}

	out, err = env.run(t, "builtins", "stoch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "stochastic") {
		t.Errorf("expected stochastic, got %q", out)
	}
	if strings.Contains(out, "print(") {
		t.Errorf("expected filtered output, got %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	env := setupEnv(t)
	if _, err := env.run(t, "bogus"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		input    string
		expected interface{}
	}{
		{"14", float64(14)},
		{"2.5", 2.5},
		{"true", true},
		{"BTCUSDT", "BTCUSDT"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseParam(tt.input); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestStartProfile(t *testing.T) {
	startProfile("", t.TempDir())()

	dir := t.TempDir()
	stop := startProfile("cpu", dir)
	stop()

	if _, err := os.Stat(filepath.Join(dir, "cpu.pprof")); err != nil {
		t.Errorf("expected cpu profile: %v", err)
	}
}

func TestProfileModes(t *testing.T) {
	modes := profileModes()
	if len(modes) != len(profileMode) {
		t.Fatalf("expected %d modes, got %d", len(profileMode), len(modes))
	}
	for i := 1; i < len(modes); i++ {
		if modes[i-1] > modes[i] {
			t.Errorf("expected sorted modes, got %v", modes)
		}
	}
}
