package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/ast"
	"github.com/arijanluiken/tradescript/internal/builtins"
	"github.com/arijanluiken/tradescript/internal/interpreter"
	"github.com/arijanluiken/tradescript/internal/parser"
	"github.com/arijanluiken/tradescript/pkg/config"
	"github.com/arijanluiken/tradescript/pkg/database"
	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// ScriptExt is the file extension of scripts loaded from the script directory
const ScriptExt = ".tsl"

// ErrScriptNotFound is returned when neither the store nor the script
// directory has a script
var ErrScriptNotFound = errors.New("script not found")

var scriptName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidScriptName reports whether name may be used for a saved script
func ValidScriptName(name string) bool {
	return scriptName.MatchString(name)
}

// ScriptStore looks up saved scripts by name. *database.DB implements it.
type ScriptStore interface {
	GetScript(name string) (*database.Script, error)
}

// Engine parses and runs scripts against market data
type Engine struct {
	logger       zerolog.Logger
	registry     *builtins.Registry
	scriptConfig config.ScriptConfig
	feedConfig   config.FeedConfig

	feed     exchanges.MarketData
	cache    BarCache
	store    ScriptStore
	programs *programCache
}

// Option configures an Engine
type Option func(*Engine)

// WithFeed sets the exchange feed used when a request names a symbol
func WithFeed(feed exchanges.MarketData) Option {
	return func(e *Engine) { e.feed = feed }
}

// WithBarCache sets the bar cache used as fallback and write-through store
func WithBarCache(cache BarCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithScriptStore sets the store consulted for saved scripts before the
// script directory
func WithScriptStore(store ScriptStore) Option {
	return func(e *Engine) { e.store = store }
}

// New creates an engine. The registry should already be restricted and have
// its extensions loaded.
func New(cfg *config.Config, registry *builtins.Registry, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:       logger.With().Str("component", "engine").Logger(),
		registry:     registry,
		scriptConfig: cfg.Script,
		feedConfig:   cfg.Feed,
		programs:     newProgramCache(cfg.Script.CacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the builtin registry scripts run against
func (e *Engine) Registry() *builtins.Registry {
	return e.registry
}

// CacheStats reports program cache usage
func (e *Engine) CacheStats() CacheStats {
	return e.programs.stats()
}

// Compile parses source, reusing a cached program when the same source was
// parsed before
func (e *Engine) Compile(source string) (*ast.Program, error) {
	if program, ok := e.programs.get(source); ok {
		return program, nil
	}

	program, err := parser.ParseString(source)
	if err != nil {
		return nil, err
	}
	e.programs.put(source, program)
	return program, nil
}

// Check parses source and reports every syntax problem without running it
func (e *Engine) Check(source string) []Diagnostic {
	if _, err := e.Compile(source); err != nil {
		return Diagnose(err)
	}
	return nil
}

// Execute runs a request to completion. It never panics and never returns
// nil; every failure becomes an error response.
func (e *Engine) Execute(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	id := uuid.NewString()
	logger := e.logger.With().Str("execution", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Script execution panicked")
			resp = errorResponse(id, fmt.Sprintf("internal error: %v", r),
				[]Diagnostic{{Kind: KindInternal, Message: fmt.Sprint(r)}})
		}
		resp.DurationMs = time.Since(start).Milliseconds()
	}()

	name, source, err := e.loadSource(req)
	if err != nil {
		return errorResponse(id, err.Error(), []Diagnostic{{Kind: KindRequest, Message: err.Error()}})
	}
	logger = logger.With().Str("script", name).Logger()

	program, err := e.Compile(source)
	if err != nil {
		diags := Diagnose(err)
		logger.Debug().Int("errors", len(diags)).Msg("Script failed to parse")
		return errorResponse(id, "script has syntax errors", diags)
	}

	if e.scriptConfig.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.scriptConfig.Timeout)
		defer cancel()
	}

	bars, err := e.loadBars(ctx, req)
	if err != nil {
		return errorResponse(id, err.Error(), []Diagnostic{{Kind: KindData, Message: err.Error()}})
	}

	in := interpreter.New(e.registry,
		interpreter.WithMaxIterations(e.scriptConfig.MaxIterations),
		interpreter.WithMaxCallDepth(e.scriptConfig.MaxCallDepth),
		interpreter.WithContext(ctx),
		interpreter.WithLogger(logger),
	)
	interval := req.Interval
	if interval == "" && req.Symbol != "" {
		interval = e.feedConfig.DefaultInterval
	}
	bindBars(in, bars)
	in.Define("symbol", interpreter.String(req.Symbol))
	in.Define("interval", interpreter.String(interval))
	for key, value := range req.Params {
		v, err := interpreter.FromNative(value)
		if err != nil {
			message := fmt.Sprintf("invalid param %q: %v", key, err)
			return errorResponse(id, message, []Diagnostic{{Kind: KindRequest, Message: message}})
		}
		in.Define(key, v)
	}

	result, err := in.Execute(program)
	if err != nil {
		diags := Diagnose(err)
		message := err.Error()
		if errors.Is(err, interpreter.ErrCancelled) && errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("script exceeded timeout of %s", e.scriptConfig.Timeout)
		}
		logger.Debug().Err(err).Msg("Script failed")
		return &Response{ID: id, Status: StatusError, Message: message, Errors: diags, Bars: len(bars)}
	}

	logger.Debug().
		Int("bars", len(bars)).
		Dur("duration", time.Since(start)).
		Msg("Script succeeded")

	return &Response{ID: id, Status: StatusSuccess, Data: result, Bars: len(bars)}
}

// loadSource returns the script name and source for a request
func (e *Engine) loadSource(req *Request) (string, string, error) {
	switch {
	case req.Source != "" && req.Script != "":
		return "", "", errors.New("request must set either source or script, not both")
	case req.Source != "":
		return "inline", req.Source, nil
	case req.Script == "":
		return "", "", errors.New("request must set source or script")
	}

	source, err := e.LoadScript(req.Script)
	if err != nil {
		return "", "", err
	}
	return req.Script, source, nil
}

// LoadScript returns the source of a saved script, looking in the script
// store first and then in the script directory
func (e *Engine) LoadScript(name string) (string, error) {
	if !ValidScriptName(name) {
		return "", fmt.Errorf("invalid script name %q", name)
	}

	if e.store != nil {
		script, err := e.store.GetScript(name)
		if err == nil {
			return script.Source, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return "", fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}

	if e.scriptConfig.Directory != "" {
		data, err := os.ReadFile(filepath.Join(e.scriptConfig.Directory, name+ScriptExt))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read script %s: %w", name, err)
		}
	}

	return "", fmt.Errorf("%w: %s", ErrScriptNotFound, name)
}
