// Package cache provides a read-through TTL cache in front of the definition store
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// DefinitionCache decorates a DefinitionRepository. Reads are cached per key
// until the TTL expires; any definition write purges the whole cache.
// Lookup errors are never cached.
type DefinitionCache struct {
	next   port.DefinitionRepository
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry
	hits    uint64
	misses  uint64
}

// Option configures the cache
type Option func(*DefinitionCache)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *DefinitionCache) {
		c.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *DefinitionCache) {
		c.now = now
	}
}

// NewDefinitionCache wraps next with a cache whose entries live for ttl
func NewDefinitionCache(next port.DefinitionRepository, ttl time.Duration, opts ...Option) *DefinitionCache {
	c := &DefinitionCache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		logger:  zap.NewNop(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the hit and miss counters
func (c *DefinitionCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Purge drops every cached entry
func (c *DefinitionCache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	c.logger.Debug("Definition cache purged")
}

func (c *DefinitionCache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.hits++
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	return nil, false
}

func (c *DefinitionCache) put(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// readThrough returns a copy of the cached value for key, loading it on a miss
func readThrough[T any](c *DefinitionCache, key string, load func() (T, error), clone func(T) T) (T, error) {
	if v, ok := c.get(key); ok {
		return clone(v.(T)), nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.put(key, clone(v))
	return v, nil
}

func cloneMachine(m *workflow.Machine) *workflow.Machine {
	c := *m
	return &c
}

func cloneState(s *workflow.State) *workflow.State {
	c := *s
	return &c
}

func cloneTransition(t *workflow.Transition) *workflow.Transition {
	c := *t
	c.Metadata = workflow.CloneMetadata(t.Metadata)
	return &c
}

func cloneAll[T any](items []*T) []*T {
	out := make([]*T, len(items))
	for i, item := range items {
		c := *item
		out[i] = &c
	}
	return out
}

func (c *DefinitionCache) GetMachine(ctx context.Context, id int64) (*workflow.Machine, error) {
	return readThrough(c, fmt.Sprintf("machine:%d", id), func() (*workflow.Machine, error) {
		return c.next.GetMachine(ctx, id)
	}, cloneMachine)
}

func (c *DefinitionCache) GetMachineBySlug(ctx context.Context, slug string) (*workflow.Machine, error) {
	return readThrough(c, "machine-slug:"+slug, func() (*workflow.Machine, error) {
		return c.next.GetMachineBySlug(ctx, slug)
	}, cloneMachine)
}

func (c *DefinitionCache) GetState(ctx context.Context, id int64) (*workflow.State, error) {
	return readThrough(c, fmt.Sprintf("state:%d", id), func() (*workflow.State, error) {
		return c.next.GetState(ctx, id)
	}, cloneState)
}

func (c *DefinitionCache) StatesByMachine(ctx context.Context, machineID int64) ([]*workflow.State, error) {
	return readThrough(c, fmt.Sprintf("states:%d", machineID), func() ([]*workflow.State, error) {
		return c.next.StatesByMachine(ctx, machineID)
	}, cloneAll[workflow.State])
}

func (c *DefinitionCache) GetTransition(ctx context.Context, id int64) (*workflow.Transition, error) {
	return readThrough(c, fmt.Sprintf("transition:%d", id), func() (*workflow.Transition, error) {
		return c.next.GetTransition(ctx, id)
	}, cloneTransition)
}

func (c *DefinitionCache) GetTransitionBySlug(ctx context.Context, machineID int64, slug string) (*workflow.Transition, error) {
	return readThrough(c, fmt.Sprintf("transition-slug:%d:%s", machineID, slug), func() (*workflow.Transition, error) {
		return c.next.GetTransitionBySlug(ctx, machineID, slug)
	}, cloneTransition)
}

func (c *DefinitionCache) TransitionsByMachine(ctx context.Context, machineID int64) ([]*workflow.Transition, error) {
	return readThrough(c, fmt.Sprintf("transitions:%d", machineID), func() ([]*workflow.Transition, error) {
		return c.next.TransitionsByMachine(ctx, machineID)
	}, cloneAll[workflow.Transition])
}

func (c *DefinitionCache) SaveDefinition(ctx context.Context, def *workflow.Definition) (*workflow.Definition, error) {
	saved, err := c.next.SaveDefinition(ctx, def)
	if err == nil {
		c.Purge()
	}
	return saved, err
}

func (c *DefinitionCache) DeleteMachine(ctx context.Context, machineID int64) error {
	err := c.next.DeleteMachine(ctx, machineID)
	c.Purge()
	return err
}

func (c *DefinitionCache) CreateGroup(ctx context.Context, group *workflow.Group) error {
	return c.next.CreateGroup(ctx, group)
}

func (c *DefinitionCache) ListGroups(ctx context.Context) ([]*workflow.Group, error) {
	return c.next.ListGroups(ctx)
}

var _ port.DefinitionRepository = (*DefinitionCache)(nil)
