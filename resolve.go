package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var choice string

	cmd := &cobra.Command{
		Use:   "resolve <object-id>",
		Short: "Resolve a sync conflict by keeping the local or remote version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], choice)
		},
	}

	cmd.Flags().StringVar(&choice, "choice", "", "which side to keep: local or remote")
	cmd.MarkFlagRequired("choice")

	return cmd
}

func runResolve(cmd *cobra.Command, id, choice string) error {
	cc := mustCLIContext(cmd.Context())

	if err := controlPost(cc.Cfg.ControlAddr, fmt.Sprintf("/resolve/%s?choice=%s", id, choice)); err != nil {
		return err
	}

	statusf("Resolved %s (%s)\n", id, choice)

	return nil
}
