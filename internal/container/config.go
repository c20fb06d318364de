// Package container provides dependency injection and lifecycle management
// for the workflow engine following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Cache    CacheConfig
	Server   ServerConfig
	Authz    authz.Config
	Reload   ReloadConfig
}

// ReloadConfig enables periodic reloading of the actor directory.
type ReloadConfig struct {
	// Interval of zero disables reloading
	Interval time.Duration

	// Source re-reads the actor directory, typically from the config file
	Source func() (authz.Config, error)
}

// DatabaseConfig holds storage connection settings.
type DatabaseConfig struct {
	// Driver is memory, sqlite or postgres
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Postgres connection retries
	RetryAttempts int
	RetryInterval time.Duration

	// MigrationsTable is the goose version table for postgres
	MigrationsTable string
}

// RedisConfig holds the distributed lock settings.
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	Prefix       string
	PollInterval time.Duration
}

// EngineConfig holds transition engine settings.
type EngineConfig struct {
	LockTTL         time.Duration
	LockTimeout     time.Duration
	DeletionPolicy  catalog.DeletionPolicy
	StrictCallbacks bool

	// DefinitionsDir holds YAML machine definitions imported at start
	DefinitionsDir string
}

// CacheConfig holds definition cache settings.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverMemory,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			RetryAttempts:   3,
			RetryInterval:   2 * time.Second,
		},
		Engine: EngineConfig{
			LockTTL:         30 * time.Second,
			LockTimeout:     5 * time.Second,
			DeletionPolicy:  catalog.PolicyRestrict,
			StrictCallbacks: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			Mode:         "release",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Reload.Interval > 0 && c.Reload.Source == nil {
		return fmt.Errorf("reload source is required when reloading is enabled")
	}

	if !c.Engine.DeletionPolicy.IsValid() {
		return fmt.Errorf("invalid deletion policy %q", c.Engine.DeletionPolicy)
	}

	return nil
}
