package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// CallbackFunc is a host-supplied authorization check. It returns either a
// Result (or *Result) or a map carrying allowed, message and reason_code.
type CallbackFunc func(ctx context.Context, entityID, actorID string, in Input) (interface{}, error)

// CallbackRegistry maps callback names to handlers
type CallbackRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CallbackFunc
}

// NewCallbackRegistry creates an empty callback registry
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{handlers: make(map[string]CallbackFunc)}
}

// RegisterHandler binds a handler to a name, replacing any previous binding
func (r *CallbackRegistry) RegisterHandler(name string, fn CallbackFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Unregister removes a handler
func (r *CallbackRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Has reports whether a handler is bound to name
func (r *CallbackRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered callback names in sorted order
func (r *CallbackRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named handler and normalizes its output
func (r *CallbackRegistry) Invoke(ctx context.Context, name, entityID, actorID string, in Input) (Result, error) {
	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoCallbackRegistered, name)
	}

	out, err := fn(ctx, entityID, actorID, in)
	if err != nil {
		return Result{}, err
	}
	return normalizeCallbackResult(out)
}

func normalizeCallbackResult(out interface{}) (Result, error) {
	switch v := out.(type) {
	case Result:
		return withDefaultReason(v), nil
	case *Result:
		if v == nil {
			return Result{}, fmt.Errorf("%w: nil result", ErrInvalidCallbackResult)
		}
		return withDefaultReason(*v), nil
	case map[string]interface{}:
		return decodeCallbackMap(v)
	default:
		return Result{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidCallbackResult, out)
	}
}

func withDefaultReason(r Result) Result {
	if r.ReasonCode == "" && r.Allowed {
		r.ReasonCode = ReasonAllowed
	}
	return r
}

// decodeCallbackMap accepts reason_code or reasonCode and requires the
// allowed, message and reason code keys to be present.
func decodeCallbackMap(m map[string]interface{}) (Result, error) {
	normalized := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k == "reasonCode" {
			k = "reason_code"
		}
		normalized[k] = v
	}

	var (
		res  Result
		meta mapstructure.Metadata
	)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:   &res,
		Metadata: &meta,
	})
	if err != nil {
		return Result{}, err
	}
	if err := dec.Decode(normalized); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidCallbackResult, err)
	}

	seen := make(map[string]bool, len(meta.Keys))
	for _, k := range meta.Keys {
		seen[k] = true
	}
	var missing []error
	for _, key := range []string{"allowed", "message", "reason_code"} {
		if !seen[key] {
			missing = append(missing, fmt.Errorf("%w: missing key %s", ErrInvalidCallbackResult, key))
		}
	}
	if len(missing) > 0 {
		return Result{}, errors.Join(missing...)
	}
	return res, nil
}

// CallbackGuard delegates the decision to a named host handler
type CallbackGuard struct {
	configured
	callbacks *CallbackRegistry
	strict    bool
	name      string
}

// NewCallbackGuard creates an unconfigured callback guard. When strict is set,
// configurations naming an unregistered handler fail validation.
func NewCallbackGuard(callbacks *CallbackRegistry, strict bool) *CallbackGuard {
	return &CallbackGuard{callbacks: callbacks, strict: strict}
}

func (g *CallbackGuard) Name() string { return "CallbackGuard" }

func (g *CallbackGuard) Description() string {
	return fmt.Sprintf("host callback %s must allow the transition", g.name)
}

func (g *CallbackGuard) ValidateConfig(params []string) []error {
	if len(params) != 1 {
		return []error{fmt.Errorf("CallbackGuard takes exactly one callback name, got %d", len(params))}
	}
	if g.callbacks == nil {
		return []error{errors.New("CallbackGuard requires a callback registry")}
	}
	if g.strict && !g.callbacks.Has(params[0]) {
		return []error{fmt.Errorf("%w: %s", ErrNoCallbackRegistered, params[0])}
	}
	return nil
}

func (g *CallbackGuard) Configure(params []string) error {
	if err := g.markConfigured(); err != nil {
		return err
	}
	if len(params) > 0 {
		g.name = params[0]
	}
	return nil
}

func (g *CallbackGuard) Check(ctx context.Context, entityID, actorID string, in Input) Result {
	if !g.isConfigured() || g.name == "" || g.callbacks == nil {
		return Deny(ReasonNotConfigured, "CallbackGuard is not configured", nil)
	}

	data := map[string]interface{}{"callback": g.name}

	res, err := g.callbacks.Invoke(ctx, g.name, entityID, actorID, in)
	switch {
	case errors.Is(err, ErrNoCallbackRegistered):
		return Deny(ReasonNoCallbackRegistered, fmt.Sprintf("no handler registered for callback %s", g.name), data)
	case errors.Is(err, ErrInvalidCallbackResult):
		data["error"] = err.Error()
		return Deny(ReasonInvalidCallbackResult, fmt.Sprintf("callback %s returned a malformed result", g.name), data)
	case err != nil:
		data["error"] = err.Error()
		return Deny(ReasonCallbackError, fmt.Sprintf("callback %s failed: %v", g.name, err), data)
	}

	if !res.Allowed && res.ReasonCode == "" {
		res.ReasonCode = ReasonCallbackError
	}
	return res
}
