package main

import (
	"github.com/garyjia/workflow-engine/internal/container"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ccfg := cfg.ToContainerConfig()
		if ccfg.Database.Driver == container.DriverMemory {
			logger.Info("Memory driver has no schema to migrate")
			return nil
		}

		storage, err := container.ProvideStorage(cmd.Context(), &ccfg.Database, logger)
		if err != nil {
			return err
		}
		logger.Info("Schema is up to date", zap.String("driver", ccfg.Database.Driver))
		return storage.Close()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
