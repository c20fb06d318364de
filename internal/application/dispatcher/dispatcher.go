package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/workflow-engine/internal/domain/event"
)

// Dispatcher routes transition events to registered handlers.
// It satisfies port.EventBus through Publish.
type Dispatcher interface {
	// SubscribeNamed registers a handler that runs inside Publish
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAsync registers a handler that runs in its own goroutine once
	// the synchronous handlers are done. Its errors are logged, never returned.
	SubscribeAsync(eventType event.Type, name string, handler Handler)

	// Publish runs every synchronous handler for the event in registration
	// order and joins their errors, then starts the asynchronous handlers.
	// One failing subscriber does not starve the rest.
	Publish(ctx context.Context, evt *event.Event) error

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close stops accepting events and waits for running async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	// For async handlers
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// SubscribeNamed registers a synchronous handler
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

// SubscribeAsync registers an asynchronous handler
func (d *eventDispatcher) SubscribeAsync(eventType event.Type, name string, handler Handler) {
	d.subscribe(HandlerInfo{Name: name, EventType: eventType, Handler: handler, Async: true})
}

func (d *eventDispatcher) subscribe(info HandlerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[info.EventType] = append(d.handlers[info.EventType], info)

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", info.EventType,
			"handler_name", info.Name,
			"async", info.Async,
		)
	}
}

// Publish runs synchronous handlers, collects their errors and then hands
// the event to asynchronous handlers
func (d *eventDispatcher) Publish(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		return fmt.Errorf("dispatcher is closed")
	}
	handlers := d.handlers[evt.Type]
	async := 0
	for _, info := range handlers {
		if info.Async {
			async++
		}
	}
	// reserved under the lock so Close cannot start waiting in between
	d.wg.Add(async)
	d.mu.RUnlock()

	var errs []error
	for _, info := range handlers {
		if info.Async {
			continue
		}
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Subscriber error", evt, info, err)
			errs = append(errs, fmt.Errorf("handler %s failed: %w", info.Name, err))
		}
	}

	// async handlers outlive the publishing request
	detached := context.WithoutCancel(ctx)
	for _, info := range handlers {
		if !info.Async {
			continue
		}
		go func(h HandlerInfo) {
			defer d.wg.Done()
			if err := d.safeExecute(detached, evt, h); err != nil {
				d.logError("Async subscriber error", evt, h, err)
			}
		}(info)
	}

	return errors.Join(errs...)
}

func (d *eventDispatcher) logError(msg string, evt *event.Event, info HandlerInfo, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Error(msg,
		"event_type", evt.Type,
		"event_id", evt.ID,
		"entity", evt.EntityType+"#"+evt.EntityID,
		"handler_name", info.Name,
		"error", err,
	)
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		// Handler is left out so callers cannot invoke subscribers directly
		result[i] = HandlerInfo{
			Name:      h.Name,
			EventType: h.EventType,
			Async:     h.Async,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			if d.logger != nil {
				d.logger.Error("Handler panic recovered",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", info.Name,
					"panic", r,
				)
			}
		}
	}()

	return info.Handler(ctx, evt)
}
