package main

import (
	"fmt"

	"github.com/garyjia/workflow-engine/internal/container"
	"github.com/spf13/cobra"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Inspect guard types and configurations",
}

var guardTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the registered guard types",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime()
		if err != nil {
			return err
		}
		ccfg := cfg.ToContainerConfig()
		guards, err := container.ProvideGuards(ccfg.Authz, &ccfg.Engine)
		if err != nil {
			return err
		}

		for _, t := range guards.Registry.Types() {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var guardValidateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check a guard configuration string such as RoleGuard:manager",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadRuntime()
		if err != nil {
			return err
		}
		ccfg := cfg.ToContainerConfig()
		guards, err := container.ProvideGuards(ccfg.Authz, &ccfg.Engine)
		if err != nil {
			return err
		}

		errs := guards.Registry.Validate(args[0])
		if len(errs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		}
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %v\n", e)
		}
		return fmt.Errorf("%s is invalid (%d problems)", args[0], len(errs))
	},
}

func init() {
	guardCmd.AddCommand(guardTypesCmd, guardValidateCmd)
	rootCmd.AddCommand(guardCmd)
}
