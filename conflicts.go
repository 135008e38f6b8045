package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// conflictIDPrefixLen is the number of characters of an object ID to show
// in table output — enough for an operator to disambiguate at a glance,
// full IDs are available via --json.
const conflictIDPrefixLen = 8

// controlObject mirrors the JSON shape of store.Object as served by
// GET /conflicts — the CLI is a client of the daemon's wire format, not an
// importer of internal/store.
type controlObject struct {
	ID              string `json:"ID"`
	CloudID         string `json:"CloudID"`
	Type            string `json:"Type"`
	ParentID        string `json:"ParentID"`
	Name            string `json:"Name"`
	Extension       string `json:"Extension"`
	Size            int64  `json:"Size"`
	LocalModifiedAt int64  `json:"LocalModifiedAt"`
	CloudModifiedAt int64  `json:"CloudModifiedAt"`
	SyncState       string `json:"SyncState"`
	ConflictHistory string `json:"ConflictHistory"`
	UpdatedAt       int64  `json:"UpdatedAt"`
}

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List unresolved sync conflicts",
		Long:  "Display every object currently in sync_state=conflict. Use 'orchard resolve' to resolve one.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConflicts(cmd)
		},
	}
}

func runConflicts(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	var conflicts []controlObject
	if err := controlGet(cc.Cfg.ControlAddr, "/conflicts", &conflicts); err != nil {
		return err
	}

	if len(conflicts) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(conflicts)
	}

	printConflictsTable(conflicts)

	return nil
}

func printConflictsTable(conflicts []controlObject) {
	headers := []string{"ID", "NAME", "PARENT", "UPDATED"}
	rows := make([][]string, len(conflicts))

	for i := range conflicts {
		c := &conflicts[i]

		id := c.ID
		if len(id) > conflictIDPrefixLen {
			id = id[:conflictIDPrefixLen]
		}

		rows[i] = []string{id, c.Name, c.ParentID, formatTime(time.Unix(0, c.UpdatedAt))}
	}

	printTable(os.Stdout, headers, rows)
}
