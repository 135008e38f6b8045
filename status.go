package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// controlStatus mirrors control.statusResponse; kept as a separate type
// since the CLI is a client of the daemon's wire format, not an importer
// of its internal package.
type controlStatus struct {
	Online         bool  `json:"online"`
	Paused         bool  `json:"paused"`
	PendingActions int   `json:"pending_actions"`
	Succeeded      int64 `json:"succeeded"`
	Failed         int64 `json:"failed"`
	CacheBytesUsed int64 `json:"cache_bytes_used"`
	ConflictCount  int   `json:"conflict_count"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's sync status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	var st controlStatus
	if err := controlGet(cc.Cfg.ControlAddr, "/status", &st); err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(st)
	}

	connState := "online"
	if !st.Online {
		connState = "offline"
	}

	runState := "running"
	if st.Paused {
		runState = "paused"
	}

	fmt.Printf("Connectivity:    %s\n", connState)
	fmt.Printf("Sync state:      %s\n", runState)
	fmt.Printf("Pending actions: %d\n", st.PendingActions)
	fmt.Printf("Succeeded:       %d\n", st.Succeeded)
	fmt.Printf("Failed:          %d\n", st.Failed)
	fmt.Printf("Cache used:      %s\n", formatSize(st.CacheBytesUsed))
	fmt.Printf("Conflicts:       %d\n", st.ConflictCount)

	return nil
}
