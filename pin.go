package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPinCmd() *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin <object-id>",
		Short: "Pin a file so it is never evicted from the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPin(cmd, args[0], !unpin)
		},
	}

	cmd.Flags().BoolVar(&unpin, "unpin", false, "unpin instead of pin")

	return cmd
}

func runPin(cmd *cobra.Command, id string, pinned bool) error {
	cc := mustCLIContext(cmd.Context())

	if err := controlPost(cc.Cfg.ControlAddr, fmt.Sprintf("/pin/%s?pinned=%t", id, pinned)); err != nil {
		return err
	}

	if pinned {
		statusf("Pinned %s\n", id)
	} else {
		statusf("Unpinned %s\n", id)
	}

	return nil
}
