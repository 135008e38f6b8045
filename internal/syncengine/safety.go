package syncengine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/orchardfs/orchard/internal/config"
)

// ErrBigDeleteBlocked is returned when tombstoning the children missing from
// a remote listing would remove more than the configured safety thresholds
// allow (SPEC_FULL.md section 10, grounded on the teacher's S5 big-delete
// invariant in safety.go). Unlike the teacher, which guards a whole-drive
// delta, Orchard's listings are single-level (spec.md section 9), so the
// guard is scoped to one folder's children per list_children call.
var ErrBigDeleteBlocked = errors.New("syncengine: big-delete protection triggered")

// BigDeleteGuard enforces spec.md's supplemented big-delete safety invariant
// against one folder's list_children result.
type BigDeleteGuard struct {
	cfg    config.SafetyConfig
	logger *slog.Logger
}

// NewBigDeleteGuard creates a BigDeleteGuard from cfg.
func NewBigDeleteGuard(cfg config.SafetyConfig, logger *slog.Logger) *BigDeleteGuard {
	return &BigDeleteGuard{cfg: cfg, logger: logger}
}

// Check validates that tombstoning missingCount children out of totalCount
// previously-known children of a folder does not exceed the configured
// absolute or percentage thresholds. folders below BigDeleteMinItems are
// exempt, mirroring the teacher's "drives below the minimum item count skip
// big-delete protection" behavior.
func (g *BigDeleteGuard) Check(folderID string, totalCount, missingCount int) error {
	if missingCount == 0 {
		return nil
	}

	if totalCount < g.cfg.BigDeleteMinItems {
		return nil
	}

	countExceeded := missingCount > g.cfg.BigDeleteMaxCount

	var percentExceeded bool
	if totalCount > 0 {
		percentExceeded = (float64(missingCount) / float64(totalCount) * 100) > g.cfg.BigDeleteMaxPercent
	}

	if !countExceeded && !percentExceeded {
		return nil
	}

	g.logger.Error("big-delete protection triggered",
		slog.String("folder_id", folderID), slog.Int("missing", missingCount), slog.Int("total", totalCount))

	return fmt.Errorf("%w: folder %s would tombstone %d/%d children", ErrBigDeleteBlocked, folderID, missingCount, totalCount)
}
