package syncengine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/orchardfs/orchard/internal/remote"
)

// heartbeatInterval is how often the connectivity probe runs while online,
// and the starting point for its own backoff once offline.
const heartbeatInterval = 30 * time.Second

// maxHeartbeatBackoff caps the probe interval once the engine has been
// offline for a while, so reconnection is still noticed reasonably quickly.
const maxHeartbeatBackoff = 5 * time.Minute

// Heartbeat maintains a process-wide, fast-path connectivity flag (spec.md
// section 4.4: "fast-path flag maintained by a heartbeat"), generalized from
// the teacher's failure_tracker.go per-path suppression into a single
// online/offline gate workers check before claiming an action.
type Heartbeat struct {
	adapter remote.Adapter
	logger  *slog.Logger
	online  atomic.Bool
}

// NewHeartbeat creates a Heartbeat that starts optimistic (online) until the
// first probe proves otherwise.
func NewHeartbeat(adapter remote.Adapter, logger *slog.Logger) *Heartbeat {
	h := &Heartbeat{adapter: adapter, logger: logger}
	h.online.Store(true)

	return h
}

// Online reports the last-known connectivity state without blocking.
func (h *Heartbeat) Online() bool {
	return h.online.Load()
}

// Run probes the remote adapter's root listing periodically until ctx is
// canceled, backing off while offline and resetting to heartbeatInterval as
// soon as a probe succeeds.
func (h *Heartbeat) Run(ctx context.Context) {
	interval := heartbeatInterval

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := h.adapter.List(probeCtx, "")
		cancel()

		if err == nil {
			if !h.online.Swap(true) {
				h.logger.Info("connectivity restored")
			}

			interval = heartbeatInterval

			continue
		}

		if h.online.Swap(false) {
			h.logger.Warn("connectivity lost", slog.String("error", err.Error()))
		}

		interval *= 2
		if interval > maxHeartbeatBackoff {
			interval = maxHeartbeatBackoff
		}
	}
}
