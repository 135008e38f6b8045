package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchardfs/orchard/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the orchard configuration file",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigWriteDefaultCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(cc.Cfg)
		},
	}
}

func newConfigWriteDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "write-default <path>",
		Short:       "Write the default configuration to path",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(_ *cobra.Command, args []string) error {
			if err := config.Write(args[0], config.DefaultConfig()); err != nil {
				return fmt.Errorf("%w: %v", errConfig, err)
			}

			statusf("Wrote default config to %s\n", args[0])

			return nil
		},
	}
}
