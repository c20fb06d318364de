package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/application/dispatcher"
	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/workflow"
	"github.com/garyjia/workflow-engine/internal/domain/event"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
	"github.com/garyjia/workflow-engine/internal/infrastructure/metrics"
	"github.com/garyjia/workflow-engine/internal/infrastructure/worker"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	storage *StorageBundle
	locks   *LockBundle
	metrics *metrics.Collector

	// Application
	guards     *GuardBundle
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	catalog    *catalog.Service

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Storage and definition cache
// 2. Entity locks
// 3. Guards and role directory
// 4. Metrics and event dispatcher
// 5. Workflow engine and catalog
// 6. Definition import
// 7. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.start(ctx); err != nil {
		c.teardown()
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

func (c *Container) start(ctx context.Context) error {
	// Step 1: Storage
	storage, err := ProvideStorage(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.storage = storage
	defs := ProvideDefinitionCache(storage.Definitions, &c.config.Cache, c.logger)
	c.logger.Info("Storage initialized", zap.String("driver", c.config.Database.Driver))

	// Step 2: Locks
	locks, err := ProvideLocker(ctx, &c.config.Redis, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize locks: %w", err)
	}
	c.locks = locks

	// Step 3: Guards
	guards, err := ProvideGuards(c.config.Authz, &c.config.Engine)
	if err != nil {
		return fmt.Errorf("failed to initialize guards: %w", err)
	}
	c.guards = guards

	// Step 4: Metrics and dispatcher
	c.metrics = metrics.NewCollector()
	c.dispatcher = ProvideDispatcher(c.logger, c.metrics)
	for _, t := range []event.Type{event.TypeBeforeTransition, event.TypeAfterTransition, event.TypeTransitionFailed} {
		for _, h := range c.dispatcher.ListHandlers(t) {
			c.logger.Debug("Event subscriber",
				zap.String("event_type", string(t)),
				zap.String("handler", h.Name),
				zap.Bool("async", h.Async),
			)
		}
	}

	// Step 5: Engine and catalog
	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Definitions: defs,
		History:     storage.History,
		Guards:      guards.Registry,
		Bus:         c.dispatcher,
		Locker:      locks.Locker,
		Metrics:     c.metrics,
		Engine:      &c.config.Engine,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.engine = engine
	c.catalog = ProvideCatalog(storage, defs, guards.Registry, &c.config.Engine, c.logger)
	c.logger.Info("Workflow engine initialized")

	// Step 6: Definitions
	imported, err := ImportDefinitions(ctx, c.catalog, c.config.Engine.DefinitionsDir, c.logger)
	if err != nil {
		return err
	}
	if imported > 0 {
		c.logger.Info("Machine definitions imported", zap.Int("count", imported))
	}

	// Step 7: Workers
	c.workers = ProvideWorkers(&c.config.Reload, c.config.Authz, guards.Directory, c.logger)
	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	// Step 0: Stop workers (reverse of step 7)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Step 1: Close dispatcher (reverse of step 4)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	// Step 2: Close redis client (reverse of step 2)
	if c.locks != nil && c.locks.Client != nil {
		if err := c.locks.Client.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}
	c.locks = nil

	// Step 3: Close storage (reverse of step 1)
	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			c.logger.Error("Failed to close storage", zap.Error(err))
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		} else {
			c.logger.Info("Storage closed")
		}
		c.storage = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// HealthChecks returns the named dependency probes for the HTTP health endpoint.
func (c *Container) HealthChecks() map[string]func(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	checks := make(map[string]func(ctx context.Context) error)
	if c.storage != nil {
		checks["database"] = c.storage.Ping
	}
	if c.locks != nil && c.locks.Client != nil {
		client := c.locks.Client
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	checks := c.HealthChecks()
	if _, ok := checks["database"]; !ok {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			status.Components[name] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
			continue
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.Engine() != nil {
		status.Components["engine"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["engine"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// Getters for accessing container components

// Engine returns the transition engine.
func (c *Container) Engine() workflow.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

// Catalog returns the machine catalog service.
func (c *Container) Catalog() *catalog.Service {
	return c.catalog
}

// Guards returns the guard registry.
func (c *Container) Guards() *guard.Registry {
	if c.guards == nil {
		return nil
	}
	return c.guards.Registry
}

// Directory returns the role directory consulted by role and capability guards.
func (c *Container) Directory() *authz.Directory {
	if c.guards == nil {
		return nil
	}
	return c.guards.Directory
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Metrics returns the prometheus collector.
func (c *Container) Metrics() *metrics.Collector {
	return c.metrics
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
