package port

import (
	"context"
	"time"

	"github.com/garyjia/workflow-engine/internal/domain/event"
)

// Authorizer answers yes/no authorization questions about an actor.
// Role and capability storage are owned by the host application.
type Authorizer interface {
	ActorHasRole(ctx context.Context, actorID, role string) (bool, error)
	ActorHasCapability(ctx context.Context, actorID, capability string) (bool, error)
}

// RoleLister is optionally implemented by authorizers that can enumerate an
// actor's roles; guards use it to enrich denial diagnostics.
type RoleLister interface {
	ActorRoles(ctx context.Context, actorID string) ([]string, error)
}

// EventBus publishes transition notifications
type EventBus interface {
	Publish(ctx context.Context, evt *event.Event) error
}

// UnlockFunc releases a lock acquired from an EntityLocker
type UnlockFunc func(ctx context.Context) error

// EntityLocker serializes work on one entity. Lock blocks until the lock is
// held, the context is done, or the implementation gives up.
type EntityLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
