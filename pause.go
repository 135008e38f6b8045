package main

import "github.com/spf13/cobra"

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the sync engine without unmounting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := controlPost(cc.Cfg.ControlAddr, "/pause"); err != nil {
				return err
			}

			statusf("Sync paused.\n")

			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused sync engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := controlPost(cc.Cfg.ControlAddr, "/resume"); err != nil {
				return err
			}

			statusf("Sync resumed.\n")

			return nil
		},
	}
}
