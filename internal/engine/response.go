package engine

import (
	"errors"

	"github.com/arijanluiken/tradescript/internal/interpreter"
	"github.com/arijanluiken/tradescript/internal/lexer"
	"github.com/arijanluiken/tradescript/internal/parser"
	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// Response statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Diagnostic kinds
const (
	KindTokenize = "tokenize"
	KindSyntax   = "syntax"
	KindRuntime  = "runtime"
	KindRequest  = "request"
	KindData     = "data"
	KindInternal = "internal"
)

// Request describes one script execution. Exactly one of Source and Script
// must be set. Bars take precedence over fetching by Symbol.
type Request struct {
	Source   string                 `json:"source,omitempty"`
	Script   string                 `json:"script,omitempty"`
	Symbol   string                 `json:"symbol,omitempty"`
	Exchange string                 `json:"exchange,omitempty"`
	Interval string                 `json:"interval,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
	Bars     []*exchanges.Kline     `json:"bars,omitempty"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

// Diagnostic is one positioned problem found while running a script
type Diagnostic struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Message string `json:"message"`
}

// Response is the outcome of Execute
type Response struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"`
	Data       *interpreter.Result `json:"data,omitempty"`
	Message    string              `json:"message,omitempty"`
	Errors     []Diagnostic        `json:"errors,omitempty"`
	Bars       int                 `json:"bars"`
	DurationMs int64               `json:"duration_ms"`
}

// OK reports whether the execution succeeded
func (r *Response) OK() bool {
	return r.Status == StatusSuccess
}

// Diagnose converts an error from any stage into diagnostics
func Diagnose(err error) []Diagnostic {
	var lexErr *lexer.Error
	var syntaxErrs parser.ErrorList
	var runErr *interpreter.Error

	switch {
	case errors.As(err, &lexErr):
		return []Diagnostic{{
			Kind:    KindTokenize,
			Line:    lexErr.Pos.Line,
			Column:  lexErr.Pos.Column,
			Message: lexErr.Error(),
		}}
	case errors.As(err, &syntaxErrs):
		out := make([]Diagnostic, len(syntaxErrs))
		for i, e := range syntaxErrs {
			out[i] = Diagnostic{
				Kind:    KindSyntax,
				Line:    e.Pos.Line,
				Column:  e.Pos.Column,
				Message: e.Error(),
			}
		}
		return out
	case errors.As(err, &runErr):
		return []Diagnostic{{
			Kind:    KindRuntime,
			Code:    runErr.Kind.Error(),
			Line:    runErr.Pos.Line,
			Column:  runErr.Pos.Column,
			Message: runErr.Error(),
		}}
	}
	return []Diagnostic{{Kind: KindInternal, Message: err.Error()}}
}

func errorResponse(id, message string, diags []Diagnostic) *Response {
	return &Response{
		ID:      id,
		Status:  StatusError,
		Message: message,
		Errors:  diags,
	}
}
