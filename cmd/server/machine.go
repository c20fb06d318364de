package main

import (
	"context"
	"fmt"

	"github.com/garyjia/workflow-engine/internal/container"
	domainwf "github.com/garyjia/workflow-engine/internal/domain/workflow"
	"github.com/garyjia/workflow-engine/internal/infrastructure/definitions"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var machineFile string

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Import and export machine definitions",
}

var machineImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Register every machine defined in a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := definitions.LoadFile(machineFile)
		if err != nil {
			return err
		}

		return withContainer(cmd.Context(), func(c *container.Container) error {
			for _, def := range defs {
				saved, err := c.Catalog().Register(cmd.Context(), def)
				if err != nil {
					return fmt.Errorf("failed to register %s: %w", def.Machine.Slug, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s (id %d)\n", saved.Machine.Slug, saved.Machine.ID)
			}
			return nil
		})
	},
}

var machineExportCmd = &cobra.Command{
	Use:   "export <machine>",
	Short: "Print a registered machine as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(c *container.Container) error {
			def, err := c.Catalog().Machine(cmd.Context(), domainwf.ParseMachineRef(args[0]))
			if err != nil {
				return err
			}
			return definitions.Encode(cmd.OutOrStdout(), definitions.FromDefinition(def))
		})
	},
}

func init() {
	machineImportCmd.Flags().StringVarP(&machineFile, "file", "f", "", "YAML file with one or more machine documents")
	_ = machineImportCmd.MarkFlagRequired("file")

	machineCmd.AddCommand(machineImportCmd, machineExportCmd)
	rootCmd.AddCommand(machineCmd)
}

// withContainer starts the container for the duration of fn
func withContainer(ctx context.Context, fn func(c *container.Container) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
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
	return fn(c)
}
