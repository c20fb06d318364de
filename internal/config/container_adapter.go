package config

import (
	"github.com/garyjia/workflow-engine/internal/application/catalog"
	"github.com/garyjia/workflow-engine/internal/container"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	roles := make(map[string]authz.Role, len(c.Authz.Roles))
	for name, role := range c.Authz.Roles {
		roles[name] = authz.Role{
			Capabilities: role.Capabilities,
			Inherits:     role.Inherits,
		}
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			RetryAttempts:   c.Database.RetryAttempts,
			RetryInterval:   c.Database.RetryInterval,
			MigrationsTable: c.Database.MigrationsTable,
		},
		Redis: container.RedisConfig{
			Enabled:      c.Redis.Enabled,
			Addr:         c.Redis.Addr,
			Password:     c.Redis.Password,
			DB:           c.Redis.DB,
			Prefix:       c.Redis.Prefix,
			PollInterval: c.Redis.PollInterval,
		},
		Engine: container.EngineConfig{
			LockTTL:         c.Engine.LockTTL,
			LockTimeout:     c.Engine.LockTimeout,
			DeletionPolicy:  catalog.DeletionPolicy(c.Engine.DeletionPolicy),
			StrictCallbacks: c.Engine.StrictCallbacks,
			DefinitionsDir:  c.Engine.DefinitionsDir,
		},
		Cache: container.CacheConfig{
			Enabled: c.Cache.Enabled,
			TTL:     c.Cache.TTL,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			Mode:         c.Server.Mode,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Authz: authz.Config{
			Roles:  roles,
			Actors: c.Authz.Actors,
		},
		Reload: container.ReloadConfig{
			Interval: c.Authz.ReloadInterval,
		},
	}
}
