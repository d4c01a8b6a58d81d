package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/internal/interpreter"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderDiagnostic formats a diagnostic as file:line:col: kind: message
func renderDiagnostic(file string, d engine.Diagnostic) string {
	location := file
	if d.Line > 0 {
		location = fmt.Sprintf("%s:%d:%d", file, d.Line, d.Column)
	}
	kind := d.Kind
	if d.Code != "" {
		kind += " (" + d.Code + ")"
	}
	return fmt.Sprintf("%s: %s %s", location, errorStyle.Render(kind+":"), d.Message)
}

// renderResponse formats an execution response for the terminal
func renderResponse(file string, resp *engine.Response) string {
	var b strings.Builder

	if !resp.OK() {
		b.WriteString(errorStyle.Render("error: "+resp.Message) + "\n")
		for _, d := range resp.Errors {
			b.WriteString("  " + renderDiagnostic(file, d) + "\n")
		}
		return b.String()
	}

	for _, line := range resp.Data.Output {
		b.WriteString(line + "\n")
	}

	if len(resp.Data.Plots) > 0 {
		b.WriteString(headerStyle.Render("plots") + "\n")
		for _, name := range sortedKeys(resp.Data.Plots) {
			b.WriteString(fmt.Sprintf("  %s = %s\n", name, latest(resp.Data.Plots[name])))
		}
	}

	b.WriteString(valueStyle.Render("=> "+valueString(resp.Data.Value)) + "\n")
	b.WriteString(hintStyle.Render(fmt.Sprintf("%d bars in %dms", resp.Bars, resp.DurationMs)) + "\n")
	return b.String()
}

func valueString(v interpreter.Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// latest shows the newest element of a series plot
func latest(v interpreter.Value) string {
	if s, ok := v.(*interpreter.Series); ok {
		return valueString(s.At(0))
	}
	return valueString(v)
}

func sortedKeys(m map[string]interpreter.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
