package syncengine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orchardfs/orchard/internal/config"
)

func newTestGuard() *BigDeleteGuard {
	return NewBigDeleteGuard(config.SafetyConfig{
		BigDeleteMinItems: 10, BigDeleteMaxCount: 5, BigDeleteMaxPercent: 50,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBigDeleteGuard_NoMissing(t *testing.T) {
	g := newTestGuard()
	assert.NoError(t, g.Check("folder", 20, 0))
}

func TestBigDeleteGuard_BelowMinItemsExempt(t *testing.T) {
	g := newTestGuard()
	// Only 8 known children, below BigDeleteMinItems=10: exempt even if all
	// are missing.
	assert.NoError(t, g.Check("folder", 8, 8))
}

func TestBigDeleteGuard_CountExceeded(t *testing.T) {
	g := newTestGuard()
	err := g.Check("folder", 20, 6)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrBigDeleteBlocked))
}

func TestBigDeleteGuard_PercentExceeded(t *testing.T) {
	g := newTestGuard()
	// Lower BigDeleteMinItems so a 9-child folder is not exempt: 5 missing
	// of 9 total = 55.5%, exceeds the 50% threshold even though the missing
	// count (5) does not exceed BigDeleteMaxCount (5).
	g.cfg.BigDeleteMinItems = 5
	err := g.Check("folder", 9, 5)
	assert.Error(t, err)
}

func TestBigDeleteGuard_WithinThresholds(t *testing.T) {
	g := newTestGuard()
	assert.NoError(t, g.Check("folder", 100, 4))
}
