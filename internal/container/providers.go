package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/application/dispatcher"
	"github.com/garyjia/workflow-engine/internal/application/guard"
	"github.com/garyjia/workflow-engine/internal/application/port"
	"github.com/garyjia/workflow-engine/internal/application/workflow"
	"github.com/garyjia/workflow-engine/internal/domain/event"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
	"github.com/garyjia/workflow-engine/internal/infrastructure/cache"
	"github.com/garyjia/workflow-engine/internal/infrastructure/definitions"
	"github.com/garyjia/workflow-engine/internal/infrastructure/lock"
	"github.com/garyjia/workflow-engine/internal/infrastructure/metrics"
	"github.com/garyjia/workflow-engine/internal/infrastructure/persistence/memory"
	"github.com/garyjia/workflow-engine/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/workflow-engine/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/workflow-engine/internal/infrastructure/worker"
	"github.com/garyjia/workflow-engine/pkg/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StorageBundle holds the definition catalog, the transition log and the
// handles needed to check and close the backing store.
type StorageBundle struct {
	Definitions port.DefinitionRepository
	History     port.HistoryStore

	// TxManager is nil for the memory driver
	TxManager port.TransactionManager

	Ping  func(ctx context.Context) error
	Close func() error
}

// LockBundle holds the entity locker and, when Redis backs it, the client.
type LockBundle struct {
	Locker port.EntityLocker
	Client *redis.Client
}

// GuardBundle holds the guard registry and the role directory it consults.
type GuardBundle struct {
	Registry  *guard.Registry
	Directory *authz.Directory
}

// ProvideStorage opens the configured driver and applies pending migrations.
func ProvideStorage(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case DriverMemory:
		return &StorageBundle{
			Definitions: memory.NewDefinitionRepository(),
			History:     memory.NewHistoryStore(),
			Ping:        func(ctx context.Context) error { return nil },
			Close:       func() error { return nil },
		}, nil

	case DriverSQLite:
		db, err := sqlite.Open(ctx, database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			MigrationsTable: cfg.MigrationsTable,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return &StorageBundle{
			Definitions: sqlite.NewDefinitionRepository(db, logger),
			History:     sqlite.NewHistoryRepository(db, logger),
			TxManager:   db,
			Ping:        db.PingContext,
			Close:       db.Close,
		}, nil

	case DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        int32(cfg.MaxOpenConns),
			MinConns:        int32(cfg.MaxIdleConns),
			MaxConnLifetime: cfg.ConnMaxLifetime,
			RetryAttempts:   cfg.RetryAttempts,
			RetryInterval:   cfg.RetryInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool, cfg.MigrationsTable, logger); err != nil {
			pool.Close()
			return nil, err
		}
		db := postgres.NewDB(pool, logger)
		return &StorageBundle{
			Definitions: postgres.NewDefinitionRepository(db, logger),
			History:     postgres.NewHistoryStore(db, logger),
			TxManager:   db,
			Ping:        postgres.Healthcheck(pool),
			Close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	}

	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// ProvideDefinitionCache wraps the catalog in a read-through cache when enabled.
func ProvideDefinitionCache(defs port.DefinitionRepository, cfg *CacheConfig, logger *zap.Logger) port.DefinitionRepository {
	if cfg == nil || !cfg.Enabled {
		return defs
	}
	return cache.NewDefinitionCache(defs, cfg.TTL, cache.WithLogger(logger))
}

// ProvideLocker returns a Redis lock when Redis is enabled and an in-process
// lock otherwise.
func ProvideLocker(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Using in-process entity locks")
		return &LockBundle{Locker: lock.NewLocal()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}

	var opts []lock.RedisOption
	if cfg.PollInterval > 0 {
		opts = append(opts, lock.WithPollInterval(cfg.PollInterval))
	}
	logger.Info("Using redis entity locks", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.Prefix))
	return &LockBundle{
		Locker: lock.NewRedis(client, cfg.Prefix, opts...),
		Client: client,
	}, nil
}

// ProvideGuards builds the role directory and the guard registry backed by it.
func ProvideGuards(authzCfg authz.Config, engineCfg *EngineConfig) (*GuardBundle, error) {
	directory, err := authz.NewDirectory(authzCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid authorization config: %w", err)
	}

	registry := guard.NewRegistry(
		guard.Dependencies{Authorizer: directory},
		guard.WithStrictCallbacks(engineCfg.StrictCallbacks),
	)
	return &GuardBundle{Registry: registry, Directory: directory}, nil
}

// ProvideDispatcher creates the event bus, subscribes the metrics counter to
// every transition event and logs failures asynchronously.
func ProvideDispatcher(logger *zap.Logger, collector *metrics.Collector) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(dispatcher.NewZapLogger(logger)))
	if collector != nil {
		for _, t := range []event.Type{
			event.TypeBeforeTransition,
			event.TypeAfterTransition,
			event.TypeTransitionFailed,
		} {
			d.SubscribeNamed(t, "metrics", collector.CountEvent)
		}
	}

	// Log failures off the request path so rejected transitions show up even without subscribers
	d.SubscribeAsync(event.TypeTransitionFailed, "failure_log", dispatcher.FailureFunc(func(ctx context.Context, notice *event.FailureNotice) error {
		logger.Debug("Transition failed",
			zap.String("entity_type", notice.EntityType),
			zap.String("entity_id", notice.EntityID),
			zap.String("transition", notice.TransitionSlug),
			zap.String("reason_code", notice.ReasonCode),
			zap.String("guard_reason_code", notice.GuardReasonCode),
		)
		return nil
	}))
	return d
}

// WorkflowDeps holds the dependencies of the transition engine.
type WorkflowDeps struct {
	Definitions port.DefinitionStore
	History     port.HistoryStore
	Guards      workflow.GuardFactory
	Bus         port.EventBus
	Locker      port.EntityLocker
	Metrics     workflow.Metrics
	Engine      *EngineConfig
	Logger      *zap.Logger
}

// ProvideWorkflowEngine creates the transition engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps.Definitions == nil || deps.History == nil || deps.Guards == nil {
		return nil, fmt.Errorf("definitions, history and guards are required")
	}

	opts := []workflow.EngineOption{workflow.WithLogger(deps.Logger)}
	if deps.Bus != nil {
		opts = append(opts, workflow.WithEventBus(deps.Bus))
	}
	if deps.Locker != nil {
		opts = append(opts, workflow.WithLocker(deps.Locker))
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
	}
	if deps.Engine != nil {
		if deps.Engine.LockTTL > 0 {
			opts = append(opts, workflow.WithLockTTL(deps.Engine.LockTTL))
		}
		if deps.Engine.LockTimeout > 0 {
			opts = append(opts, workflow.WithLockTimeout(deps.Engine.LockTimeout))
		}
	}

	return workflow.NewEngine(deps.Definitions, deps.History, deps.Guards, opts...), nil
}

// ProvideCatalog creates the machine catalog service.
func ProvideCatalog(storage *StorageBundle, defs port.DefinitionRepository, guards catalog.GuardValidator, cfg *EngineConfig, logger *zap.Logger) *catalog.Service {
	opts := []catalog.Option{
		catalog.WithDeletionPolicy(cfg.DeletionPolicy),
		catalog.WithLogger(logger),
	}
	if storage.TxManager != nil {
		opts = append(opts, catalog.WithTransactions(storage.TxManager))
	}
	return catalog.NewService(defs, storage.History, guards, opts...)
}

// ImportDefinitions registers every definition found in dir. Machines that are
// already registered are skipped so restarts are idempotent.
func ImportDefinitions(ctx context.Context, svc *catalog.Service, dir string, logger *zap.Logger) (int, error) {
	if dir == "" {
		return 0, nil
	}

	defs, err := definitions.LoadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to load definitions from %s: %w", dir, err)
	}

	imported := 0
	for _, def := range defs {
		if _, err := svc.Register(ctx, def); err != nil {
			if errors.Is(err, domainwf.ErrDuplicateMachine) {
				logger.Debug("Machine already registered", zap.String("machine", def.Machine.Slug))
				continue
			}
			return imported, fmt.Errorf("failed to import machine %s: %w", def.Machine.Slug, err)
		}
		imported++
	}
	return imported, nil
}

// ProvideWorkers registers the background workers the configuration enables.
func ProvideWorkers(reload *ReloadConfig, current authz.Config, directory *authz.Directory, logger *zap.Logger) *worker.Manager {
	m := worker.NewManager(logger)
	if reload != nil && reload.Interval > 0 && reload.Source != nil {
		m.Register(worker.NewDirectoryReloader(reload.Interval, reload.Source, directory, current, logger))
	}
	return m
}
