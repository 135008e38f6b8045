package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/orchardfs/orchard/internal/actionqueue"
	"github.com/orchardfs/orchard/internal/metrics"
	"github.com/orchardfs/orchard/internal/store"
)

// maxRecordedErrors caps the diagnostic error slice kept in memory so a
// long-running mount doesn't grow it unbounded.
const maxRecordedErrors = 1000

// idlePollInterval is how long a worker sleeps after finding no eligible
// action before polling the queue again.
const idlePollInterval = 500 * time.Millisecond

// offlinePollInterval is how long a worker sleeps when the Heartbeat
// reports the remote is unreachable, rather than spinning on claims that
// would only fail (spec.md section 4.4's heartbeat fast path).
const offlinePollInterval = 5 * time.Second

// metadataActionTypes are the short, latency-sensitive actions the
// dedicated metadata worker claims ahead of the general IO worker pool
// (spec.md section 5: "a dedicated metadata worker that handles short,
// latency-sensitive operations").
var metadataActionTypes = []store.ActionType{
	store.ActionListChildren, store.ActionRename, store.ActionMove, store.ActionEnsureLatest,
}

// WorkerPool is a flat pool of goroutines claiming and executing actions
// against the Executor, grounded on the teacher's WorkerPool (worker.go)
// but adapted from its DepTracker/ready-channel dispatch to polling the
// Store-backed Action Queue directly, and split into general IO workers
// plus one dedicated metadata worker per SPEC_FULL.md section 5.
type WorkerPool struct {
	queue     *actionqueue.Queue
	executor  *Executor
	heartbeat *Heartbeat
	logger    *slog.Logger

	succeeded     atomic.Int64
	failed        atomic.Int64
	errors        []error
	errorsMu      stdsync.Mutex
	droppedErrors atomic.Int64

	// paused gates claiming without tearing down the goroutines, so the
	// control API's pause/resume (SPEC_FULL.md section 10) is instant and
	// doesn't re-pay worker startup cost.
	paused atomic.Bool

	// targetLocks serializes actions against the same object id, so a
	// rename and an upload for the same file never run concurrently
	// (SPEC_FULL.md section 5: "per-target serialization via a held
	// mutex, not a whole-queue lock").
	targetLocks stdsync.Map // map[string]*stdsync.Mutex

	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// NewWorkerPool creates a WorkerPool that dispatches claimed actions to
// executor, gated by heartbeat's connectivity flag.
func NewWorkerPool(queue *actionqueue.Queue, executor *Executor, heartbeat *Heartbeat, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{queue: queue, executor: executor, heartbeat: heartbeat, logger: logger}
}

// Start spawns ioWorkers general-purpose workers plus metaWorkers
// dedicated metadata workers.
func (wp *WorkerPool) Start(ctx context.Context, ioWorkers, metaWorkers int) {
	if ioWorkers < 1 {
		ioWorkers = 1
	}

	if metaWorkers < 1 {
		metaWorkers = 1
	}

	ctx, wp.cancel = context.WithCancel(ctx)

	for range metaWorkers {
		wp.wg.Add(1)

		go wp.run(ctx, func(c context.Context) (*store.Action, error) {
			return wp.queue.ClaimByTypes(c, metadataActionTypes)
		})
	}

	for range ioWorkers {
		wp.wg.Add(1)

		go wp.run(ctx, wp.queue.Claim)
	}

	wp.logger.Info("worker pool started", slog.Int("io_workers", ioWorkers), slog.Int("metadata_workers", metaWorkers))
}

// Stop cancels all in-flight claims and waits for every worker goroutine
// to return.
func (wp *WorkerPool) Stop() {
	if wp.cancel != nil {
		wp.cancel()
	}

	wp.wg.Wait()
}

// Stats returns execution counters and a bounded slice of recent errors.
func (wp *WorkerPool) Stats() (succeeded, failed int64, errs []error) {
	wp.errorsMu.Lock()
	defer wp.errorsMu.Unlock()

	out := make([]error, len(wp.errors))
	copy(out, wp.errors)

	return wp.succeeded.Load(), wp.failed.Load(), out
}

// DroppedErrors returns how many errors were not recorded because the
// diagnostic slice was full; the failed counter stays accurate regardless.
func (wp *WorkerPool) DroppedErrors() int64 {
	return wp.droppedErrors.Load()
}

// Pause stops workers from claiming new actions; actions already dispatched
// run to completion.
func (wp *WorkerPool) Pause() {
	wp.paused.Store(true)
}

// Resume lets workers claim again.
func (wp *WorkerPool) Resume() {
	wp.paused.Store(false)
}

// Paused reports whether the pool is currently refusing to claim.
func (wp *WorkerPool) Paused() bool {
	return wp.paused.Load()
}

type claimFunc func(ctx context.Context) (*store.Action, error)

// run is the main loop for a single worker goroutine: claim, lock the
// target, dispatch, unlock, report.
func (wp *WorkerPool) run(ctx context.Context, claim claimFunc) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if wp.paused.Load() {
			wp.sleep(ctx, offlinePollInterval)
			continue
		}

		if !wp.heartbeat.Online() {
			wp.sleep(ctx, offlinePollInterval)
			continue
		}

		a, err := claim(ctx)
		if err != nil {
			wp.logger.Error("worker: claim failed", slog.String("error", err.Error()))
			wp.sleep(ctx, idlePollInterval)

			continue
		}

		if a == nil {
			wp.sleep(ctx, idlePollInterval)
			continue
		}

		wp.safeExecute(ctx, a)
	}
}

func (wp *WorkerPool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// safeExecute serializes dispatch per target object and recovers from any
// panic in a handler so one bad action doesn't take down the pool.
func (wp *WorkerPool) safeExecute(ctx context.Context, a *store.Action) {
	lockIface, _ := wp.targetLocks.LoadOrStore(a.TargetID, &stdsync.Mutex{})
	lock := lockIface.(*stdsync.Mutex)

	lock.Lock()
	defer lock.Unlock()

	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	timer := metrics.NewTimer()

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("worker: panic in action dispatch",
				slog.Int64("id", a.ID), slog.String("type", string(a.Type)), slog.Any("panic", r))
			wp.recordFailure(fmt.Errorf("panic: %v", r))

			if ferr := wp.queue.Fail(ctx, a, fmt.Errorf("panic: %v", r)); ferr != nil {
				wp.logger.Error("worker: record panic failure", slog.String("error", ferr.Error()))
			}
		}
	}()

	err := wp.executor.Dispatch(ctx, a)

	timer.ObserveVec(metrics.ActionDuration, string(a.Type))

	if err == nil {
		wp.succeeded.Add(1)
		metrics.ActionsTotal.WithLabelValues(string(a.Type), "success").Inc()

		if cerr := wp.queue.Complete(ctx, a.ID); cerr != nil {
			wp.logger.Error("worker: mark complete failed", slog.Int64("id", a.ID), slog.String("error", cerr.Error()))
		}

		return
	}

	wp.recordFailure(err)
	metrics.ActionsTotal.WithLabelValues(string(a.Type), "failure").Inc()

	class := Classify(err)
	wp.logger.Warn("worker: action failed",
		slog.Int64("id", a.ID), slog.String("type", string(a.Type)),
		slog.String("class", string(class)), slog.String("error", err.Error()))

	if ferr := wp.queue.Fail(ctx, a, err); ferr != nil {
		wp.logger.Error("worker: record failure failed", slog.Int64("id", a.ID), slog.String("error", ferr.Error()))
	}
}

func (wp *WorkerPool) recordFailure(err error) {
	if err == nil {
		return
	}

	wp.failed.Add(1)

	wp.errorsMu.Lock()
	defer wp.errorsMu.Unlock()

	if len(wp.errors) >= maxRecordedErrors {
		wp.droppedErrors.Add(1)
		return
	}

	wp.errors = append(wp.errors, err)
}
