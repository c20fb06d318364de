package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/garyjia/workflow-engine/internal/application/dispatcher"
	"github.com/garyjia/workflow-engine/internal/config"
	"github.com/garyjia/workflow-engine/internal/container"
	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
	httpapi "github.com/garyjia/workflow-engine/internal/interfaces/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting workflow engine",
		zap.String("version", httpapi.Version),
		zap.String("driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ccfg := cfg.ToContainerConfig()
	if ccfg.Reload.Interval > 0 {
		ccfg.Reload.Source = reloadAuthz
	}

	c, err := container.NewContainer(ccfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	opts := []httpapi.ServerOption{httpapi.WithMetricsHandler(c.Metrics().Handler())}
	for name, check := range c.HealthChecks() {
		opts = append(opts, httpapi.WithHealthCheck(name, check))
	}

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Mode:         cfg.Server.Mode,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, c.Engine(), c.Catalog(), c.Guards(), dispatcher.NewZapLogger(logger), opts...)

	return server.Start(ctx)
}

// reloadAuthz re-reads the actor directory from the same config file
func reloadAuthz() (authz.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return authz.Config{}, err
	}
	return cfg.ToContainerConfig().Authz, nil
}
