package builtins

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/internal/interpreter"
	"github.com/arijanluiken/tradescript/pkg/config"
)

// Category groups builtins for listing
type Category string

const (
	CategoryCore      Category = "core"
	CategoryMath      Category = "math"
	CategoryIndicator Category = "indicator"
	CategoryExtension Category = "extension"
)

// Info describes a registered builtin
type Info struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Usage    string   `json:"usage"`
}

type entry struct {
	info Info
	fn   interpreter.BuiltinFunc
}

// Registry is the whitelisted table of functions scripts may call. It is
// filled at startup and read concurrently afterwards.
type Registry struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	enabled map[string]bool // nil means every registered name is enabled
}

// NewRegistry creates a registry holding the core, math and indicator
// functions
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		logger:  logger.With().Str("component", "builtins").Logger(),
		entries: make(map[string]entry),
	}

	r.registerCore()
	r.registerMath()
	r.registerIndicators()

	r.logger.Debug().Int("count", len(r.entries)).Msg("Builtin registry initialized")
	return r
}

// FromConfig builds a registry restricted to the configured whitelist with
// the extension directory loaded
func FromConfig(cfg config.ScriptConfig, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.Restrict(cfg.Builtins); err != nil {
		return nil, err
	}
	if _, err := r.LoadExtensions(cfg.ExtensionsDir); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) register(name string, category Category, usage string, fn interpreter.BuiltinFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{
		info: Info{Name: name, Category: category, Usage: usage},
		fn:   fn,
	}
	// extensions join an existing whitelist
	if category == CategoryExtension && r.enabled != nil {
		r.enabled[name] = true
	}
}

// Lookup returns the function registered under name if it is enabled
func (r *Registry) Lookup(name string) (interpreter.BuiltinFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok || (r.enabled != nil && !r.enabled[name]) {
		return nil, false
	}
	return e.fn, true
}

// IsBuiltin reports whether name is an enabled builtin
func (r *Registry) IsBuiltin(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the enabled builtin names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		if r.enabled == nil || r.enabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// List describes the enabled builtins in sorted order
func (r *Registry) List() []Info {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		infos = append(infos, r.entries[name].info)
	}
	return infos
}

// Validate checks that every name is on the whitelist
func (r *Registry) Validate(names []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unknown []string
	for _, name := range names {
		if _, ok := r.entries[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown builtins: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Restrict enables only the given names. An empty list enables everything.
func (r *Registry) Restrict(names []string) error {
	if err := r.Validate(names); err != nil {
		return fmt.Errorf("failed to restrict builtins: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		r.enabled = nil
		return nil
	}

	r.enabled = make(map[string]bool, len(names))
	for _, name := range names {
		r.enabled[name] = true
	}

	r.logger.Info().Int("enabled", len(names)).Msg("Builtin registry restricted")
	return nil
}
