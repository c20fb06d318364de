package guard

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/garyjia/workflow-engine/internal/application/port"
)

// Constructor creates a fresh, unconfigured guard
type Constructor func() Guard

// Dependencies are the collaborators the built-in guards need
type Dependencies struct {
	Authorizer port.Authorizer
	Callbacks  *CallbackRegistry
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithStrictCallbacks controls whether CallbackGuard configurations must name
// a registered handler. Strict is the default.
func WithStrictCallbacks(strict bool) RegistryOption {
	return func(r *Registry) {
		r.strictCallbacks = strict
	}
}

// Registry maps guard type names to constructors and builds configured guards
// from configuration strings. Built guards are cached per configuration string.
type Registry struct {
	mu              sync.RWMutex
	constructors    map[string]Constructor
	cache           map[string]Guard
	deps            Dependencies
	strictCallbacks bool
}

// NewRegistry creates a registry with the built-in guard types registered
func NewRegistry(deps Dependencies, opts ...RegistryOption) *Registry {
	if deps.Callbacks == nil {
		deps.Callbacks = NewCallbackRegistry()
	}

	r := &Registry{
		constructors:    make(map[string]Constructor),
		cache:           make(map[string]Guard),
		deps:            deps,
		strictCallbacks: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.constructors["RoleGuard"] = func() Guard { return NewRoleGuard(r.deps.Authorizer) }
	r.constructors["CapabilityGuard"] = func() Guard { return NewCapabilityGuard(r.deps.Authorizer) }
	r.constructors["OwnerGuard"] = func() Guard { return NewOwnerGuard() }
	r.constructors["CallbackGuard"] = func() Guard { return NewCallbackGuard(r.deps.Callbacks, r.strictCallbacks) }

	return r
}

// Callbacks returns the callback registry used by CallbackGuard
func (r *Registry) Callbacks() *CallbackRegistry {
	return r.deps.Callbacks
}

// Register adds a custom guard type
func (r *Registry) Register(name string, ctor Constructor) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyConfig
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[name]; exists {
		return fmt.Errorf("%w: %s", ErrGuardTypeExists, name)
	}
	r.constructors[name] = ctor
	r.cache = make(map[string]Guard)
	return nil
}

// Types returns the registered type names in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.typesLocked()
}

func (r *Registry) typesLocked() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create parses config and returns a configured guard
func (r *Registry) Create(config string) (Guard, error) {
	key := strings.TrimSpace(config)

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	g, params, err := r.build(config)
	if err != nil {
		return nil, err
	}
	if errs := g.ValidateConfig(params); len(errs) > 0 {
		return nil, &InvalidConfigError{Config: config, Errs: errs}
	}
	if err := g.Configure(params); err != nil {
		return nil, err
	}

	// CallbackGuard validity depends on handler registration, which can change
	if _, isCallback := g.(*CallbackGuard); !isCallback {
		r.mu.Lock()
		r.cache[key] = g
		r.mu.Unlock()
	}
	return g, nil
}

// Validate reports every problem with config without caching anything
func (r *Registry) Validate(config string) []error {
	g, params, err := r.build(config)
	if err != nil {
		return []error{err}
	}
	return g.ValidateConfig(params)
}

func (r *Registry) build(config string) (Guard, []string, error) {
	typeName, params, err := ParseConfig(config)
	if err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	ctor, ok := r.constructors[typeName]
	known := r.typesLocked()
	r.mu.RUnlock()

	if !ok {
		return nil, nil, &UnknownGuardTypeError{Type: typeName, Known: known}
	}
	return ctor(), params, nil
}

// ParseConfig splits "Type:p1,p2" into a type name and trimmed, non-empty
// parameters. A config without a colon has no parameters.
func ParseConfig(config string) (string, []string, error) {
	config = strings.TrimSpace(config)
	typeName, rest, hasParams := strings.Cut(config, ":")
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return "", nil, ErrEmptyConfig
	}

	var params []string
	if hasParams {
		for _, p := range strings.Split(rest, ",") {
			if p = strings.TrimSpace(p); p != "" {
				params = append(params, p)
			}
		}
	}
	return typeName, params, nil
}

// FormatConfig renders a type name and parameters as a configuration string
func FormatConfig(typeName string, params ...string) string {
	if len(params) == 0 {
		return typeName
	}
	return typeName + ":" + strings.Join(params, ",")
}
