package parser

import (
	"fmt"
	"strings"

	"github.com/arijanluiken/tradescript/internal/token"
)

// Error is a single syntax error. Parsing continues after one is recorded.
type Error struct {
	Pos   token.Position `json:"position"`
	Msg   string         `json:"message"`
	Where string         `json:"where"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d:%d: %s %s", e.Pos.Line, e.Pos.Column, e.Msg, e.Where)
}

// ErrorList collects every syntax error found in a script, in source order
type ErrorList []*Error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no syntax errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d syntax errors:\n%s", len(l), strings.Join(msgs, "\n"))
}

// Err returns the list as an error, or nil when it is empty
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
