package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orchardfs/orchard/internal/actionqueue"
	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/metrics"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

// ErrObjectNotFound is returned by control-API-facing Engine methods that
// take an object id, to distinguish "no such object" from other failures.
var ErrObjectNotFound = errors.New("syncengine: object not found")

// tombstoneSweepInterval is how often the Engine purges confirmed
// tombstones older than the configured retention window, grounded on the
// teacher's periodic CleanupTombstones call.
const tombstoneSweepInterval = 1 * time.Hour

// shutdownGrace bounds how long Stop waits for in-flight actions to drain
// before returning (spec.md section 5: "signals in-flight workers, drains
// with a bounded grace period").
const shutdownGrace = 30 * time.Second

// metricsCollectInterval is how often the Engine pushes point-in-time gauges
// (queue depth, cache bytes used) into the metrics registry, grounded on the
// teacher pack's periodic-collector pattern (cuemby-warren's
// MetricsCollector.Start ticks every 15s).
const metricsCollectInterval = 15 * time.Second

// EngineConfig holds everything NewEngine needs to wire an Engine together.
type EngineConfig struct {
	Store      *store.Store
	Cache      *cachefs.Cache
	Adapter    remote.Adapter
	Config     *config.Config
	Logger     *slog.Logger
}

// Engine ties together the Heartbeat, Action Queue, WorkerPool, Executor,
// and periodic maintenance passes into the single long-running process a
// mounted Orchard daemon runs, grounded on the teacher's Engine
// (engine.go) but restructured from its one-shot RunOnce cycle into a
// continuously running pool: Orchard has no delta-feed cadence to drive
// discrete cycles, since the FUSE surface enqueues actions as they happen.
type Engine struct {
	store     *store.Store
	cache     *cachefs.Cache
	queue     *actionqueue.Queue
	heartbeat *Heartbeat
	workers   *WorkerPool
	executor  *Executor
	conflict  *ConflictResolver
	cfg       *config.Config
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine constructs an Engine from cfg. It does not start anything; call
// Run to begin processing.
func NewEngine(ec EngineConfig) *Engine {
	bigDelete := NewBigDeleteGuard(ec.Config.Safety, ec.Logger)
	conflict := NewConflictResolver(ec.Store, ec.Adapter, ec.Config.ConflictPolicy, ec.Logger)
	executor := NewExecutor(ec.Store, ec.Cache, ec.Adapter, conflict, bigDelete, ec.Config.ChunkSizeBytes, ec.Logger)
	queue := actionqueue.New(ec.Store, ec.Logger, ec.Config.MaxRetries, ec.Config.RetryBase(), ec.Config.RetryMax())
	heartbeat := NewHeartbeat(ec.Adapter, ec.Logger)
	workers := NewWorkerPool(queue, executor, heartbeat, ec.Logger)

	return &Engine{
		store: ec.Store, cache: ec.Cache, queue: queue, heartbeat: heartbeat,
		workers: workers, executor: executor, conflict: conflict, cfg: ec.Config, logger: ec.Logger,
		done: make(chan struct{}),
	}
}

// Queue exposes the underlying Action Queue so the FUSE surface and
// control/query API can enqueue actions and read status.
func (e *Engine) Queue() *actionqueue.Queue {
	return e.queue
}

// Heartbeat exposes the connectivity flag for the control/query API.
func (e *Engine) Heartbeat() *Heartbeat {
	return e.heartbeat
}

// Run starts the heartbeat probe, the worker pool, and the periodic
// tombstone sweep, then blocks until ctx is canceled. It enqueues an
// initial root list_children so the projection has content to show before
// any FUSE readdir call arrives.
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if _, err := e.store.RecoverOrphanedActions(runCtx, e.logger); err != nil {
		return fmt.Errorf("syncengine: recover orphaned actions: %w", err)
	}

	if _, err := e.cache.SweepPartFiles(); err != nil {
		return fmt.Errorf("syncengine: sweep part files: %w", err)
	}

	if _, err := e.queue.Enqueue(runCtx, &store.Action{
		Type: store.ActionListChildren, TargetID: "", Direction: store.DirectionPull,
		Priority: store.PriorityFUSESync,
	}); err != nil {
		return fmt.Errorf("syncengine: enqueue initial root listing: %w", err)
	}

	go e.heartbeat.Run(runCtx)

	e.workers.Start(runCtx, e.cfg.WorkerCountIO, e.cfg.WorkerCountMeta)

	go e.sweepTombstones(runCtx)
	go e.collectMetrics(runCtx)

	e.logger.Info("sync engine running")

	<-runCtx.Done()

	e.logger.Info("sync engine stopping", slog.Duration("grace", shutdownGrace))

	stopped := make(chan struct{})

	go func() {
		e.workers.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		e.logger.Warn("sync engine stop: grace period exceeded, workers may still be draining")
	}

	close(e.done)

	return nil
}

// Stop signals Run to begin cooperative shutdown and waits for it to
// finish (or for the shutdown grace period to expire).
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}

	<-e.done
}

// sweepTombstones periodically purges confirmed tombstones older than the
// configured retention window (SPEC_FULL.md section 10).
func (e *Engine) sweepTombstones(ctx context.Context) {
	ticker := time.NewTicker(tombstoneSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.store.CleanupTombstones(ctx, e.cfg.TombstoneRetentionDays)
			if err != nil {
				e.logger.Error("tombstone sweep failed", slog.String("error", err.Error()))
				continue
			}

			if n > 0 {
				e.logger.Info("tombstone sweep", slog.Int64("purged", n))
			}
		}
	}
}

// collectMetrics periodically pushes point-in-time gauges into the metrics
// registry. The action queue has no per-type pending count, so queue depth
// is reported under a single "total" label.
func (e *Engine) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsCollectInterval)
	defer ticker.Stop()

	collect := func() {
		if pending, err := e.store.CountPending(ctx); err == nil {
			metrics.QueueDepth.WithLabelValues("total").Set(float64(pending))
		}

		if bytesUsed, err := e.store.CacheUsageBytes(ctx); err == nil {
			metrics.CacheBytesUsed.Set(float64(bytesUsed))
		}
	}

	collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collect()
		}
	}
}

// Stats returns the worker pool's execution counters, surfaced via the
// control/query API's status endpoint.
func (e *Engine) Stats() (succeeded, failed int64, errs []error) {
	return e.workers.Stats()
}

// Pause stops the worker pool from claiming new actions, for the control
// API's POST /pause (spec.md section 6).
func (e *Engine) Pause() {
	e.workers.Pause()
}

// Resume lets the worker pool claim again, for POST /resume.
func (e *Engine) Resume() {
	e.workers.Resume()
}

// Paused reports the worker pool's current pause state, for GET /status.
func (e *Engine) Paused() bool {
	return e.workers.Paused()
}

// Online reports the heartbeat's current connectivity flag, for
// GET /status.
func (e *Engine) Online() bool {
	return e.heartbeat.Online()
}

// ListConflicts returns every object currently sync_state=conflict, for
// GET /conflicts.
func (e *Engine) ListConflicts(ctx context.Context) ([]*store.Object, error) {
	return e.store.ListConflicts(ctx)
}

// ResolveConflict applies an operator's explicit choice to object id and,
// when the resolution calls for it, enqueues the resulting upload or
// download immediately rather than waiting for the next reconciliation
// pass, for POST /resolve/{id}?choice={local|remote} (spec.md section 6).
func (e *Engine) ResolveConflict(ctx context.Context, id, choice string) error {
	o, err := e.store.GetObject(ctx, id)
	if err != nil {
		return err
	}

	if o == nil {
		return ErrObjectNotFound
	}

	next, err := e.conflict.ResolveManual(ctx, o, choice)
	if err != nil {
		return err
	}

	var actionType store.ActionType

	switch next {
	case NextUpload:
		actionType = store.ActionUpdateContent
		if o.CloudID == "" {
			actionType = store.ActionUpload
		}
	case NextDownload:
		actionType = store.ActionDownload
	default:
		return nil
	}

	_, err = e.queue.Enqueue(ctx, &store.Action{
		Type: actionType, TargetID: o.ID, Direction: directionFor(actionType), Priority: store.PriorityInteractive,
	})

	return err
}

// SetPin pins or unpins object id against cache eviction, for
// POST /pin/{id}.
func (e *Engine) SetPin(ctx context.Context, id string, pinned bool) error {
	return e.store.SetPinned(ctx, id, pinned)
}
