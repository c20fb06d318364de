package workflow

import (
	"context"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/port"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

// Engine validates, authorizes, executes and records state transitions.
// Rejections are returned as *TransitionError.
type Engine interface {
	// CanTransition checks a request without writing anything
	CanTransition(ctx context.Context, req TransitionRequest) (*Validation, error)

	// ApplyTransition validates and commits a transition under the entity lock
	ApplyTransition(ctx context.Context, req TransitionRequest) (*Result, error)

	// ForceTransition writes a log entry to any state, bypassing transitions and guards
	ForceTransition(ctx context.Context, req ForceRequest) (*Result, error)

	// AvailableTransitions lists transitions leaving the entity's current state
	AvailableTransitions(ctx context.Context, q AvailableQuery) ([]AvailableTransition, error)

	// CurrentState returns the to-state of the entity's newest log entry
	CurrentState(ctx context.Context, entityType, entityID string, machine domainwf.MachineRef) (*StateView, error)

	// EntityHistory returns the entity's log newest-first, capped at limit when limit > 0.
	// A zero machine reference spans every machine.
	EntityHistory(ctx context.Context, entityType, entityID string, machine domainwf.MachineRef, limit int) ([]HistoryItem, error)
}

// GuardFactory builds configured guards from configuration strings
type GuardFactory interface {
	Create(config string) (guard.Guard, error)
}

// Metrics records engine outcomes
type Metrics interface {
	ObserveTransition(machine, code string, d time.Duration)
	ObserveGuard(guardType, reason string)
	ObserveLockWait(d time.Duration)
}

// EngineOption configures the engine
type EngineOption func(*engineImpl)

// WithEventBus sets the bus that receives before, after and failed notifications
func WithEventBus(bus port.EventBus) EngineOption {
	return func(e *engineImpl) {
		e.bus = bus
	}
}

// WithLocker serializes work per entity through the given locker
func WithLocker(locker port.EntityLocker) EngineOption {
	return func(e *engineImpl) {
		e.locker = locker
	}
}

// WithLockTTL sets how long a held entity lock survives a crashed holder
func WithLockTTL(ttl time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.lockTTL = ttl
	}
}

// WithLockTimeout bounds how long ApplyTransition waits for the entity lock
func WithLockTimeout(timeout time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.lockTimeout = timeout
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the timestamp source of new log entries
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}
