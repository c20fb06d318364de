package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WFE_SERVER_PORT
const EnvPrefix = "WFE"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Authz    AuthzConfig    `mapstructure:"authz"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig selects and configures the storage driver
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, sqlite or postgres
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	MigrationsTable string        `mapstructure:"migrations_table"`
}

// RedisConfig enables the distributed entity lock
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Prefix       string        `mapstructure:"prefix"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// EngineConfig tunes the transition engine
type EngineConfig struct {
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	DeletionPolicy  string        `mapstructure:"deletion_policy"`
	StrictCallbacks bool          `mapstructure:"strict_callbacks"`
	DefinitionsDir  string        `mapstructure:"definitions_dir"`
}

// CacheConfig configures the definition cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AuthzConfig is the static actor directory
type AuthzConfig struct {
	Roles  map[string]RoleConfig `mapstructure:"roles"`
	Actors map[string][]string   `mapstructure:"actors"`

	// ReloadInterval re-reads roles and actors from the config file; zero disables
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// RoleConfig grants capabilities and inherits other roles
type RoleConfig struct {
	Capabilities []string `mapstructure:"capabilities"`
	Inherits     []string `mapstructure:"inherits"`
}

// Load loads configuration from an optional YAML file and WFE_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/workflow.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.retry_attempts", 3)
	v.SetDefault("database.retry_interval", 2*time.Second)
	v.SetDefault("database.migrations_table", "wf_schema_migrations")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "wfe:")
	v.SetDefault("redis.poll_interval", 50*time.Millisecond)

	// Engine defaults
	v.SetDefault("engine.lock_ttl", 30*time.Second)
	v.SetDefault("engine.lock_timeout", 5*time.Second)
	v.SetDefault("engine.deletion_policy", "restrict")
	v.SetDefault("engine.strict_callbacks", true)
	v.SetDefault("engine.definitions_dir", "")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)

	// Authz defaults
	v.SetDefault("authz.reload_interval", 0)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds secrets that conventionally live outside the prefix
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "WFE_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "WFE_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "WFE_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory, sqlite or postgres, got %q", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Engine.LockTTL <= 0 {
		return fmt.Errorf("engine.lock_ttl must be positive")
	}
	if c.Engine.LockTimeout <= 0 {
		return fmt.Errorf("engine.lock_timeout must be positive")
	}
	if c.Engine.DeletionPolicy != "restrict" && c.Engine.DeletionPolicy != "cascade" {
		return fmt.Errorf("engine.deletion_policy must be restrict or cascade, got %q", c.Engine.DeletionPolicy)
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive when the cache is enabled")
	}

	return nil
}
