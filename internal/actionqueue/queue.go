// Package actionqueue wraps the State Store's action table with the
// retry/backoff policy used when an action fails (spec.md section 4.3, 7).
// The table itself — schema, coalescing, claiming — lives in internal/store
// since it is, per spec.md, "a durable queue inside the State Store"; this
// package is the thin policy layer the teacher would call a "session
// manager" or "retry wrapper" sitting in front of the raw table.
package actionqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/orchardfs/orchard/internal/store"
)

// Queue enqueues and claims actions against the State Store, computing
// backoff for failed attempts via github.com/sethvargo/go-retry (promoted
// here from an indirect teacher dependency to a direct one: the teacher
// imports it transitively through its HTTP retry middleware but never
// calls it directly for the action queue's own retry policy the way this
// package does).
type Queue struct {
	store      *store.Store
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// New creates a Queue backed by s, retrying failed actions up to
// maxRetries times with exponential backoff and jitter between baseDelay
// and maxDelay.
func New(s *store.Store, logger *slog.Logger, maxRetries int, baseDelay, maxDelay time.Duration) *Queue {
	return &Queue{store: s, logger: logger, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
}

// Enqueue enqueues or coalesces an action, returning its row ID.
func (q *Queue) Enqueue(ctx context.Context, a *store.Action) (int64, error) {
	id, err := q.store.Enqueue(ctx, a)
	if err != nil {
		return 0, err
	}

	q.logger.Debug("action enqueued",
		slog.String("type", string(a.Type)), slog.String("target_id", a.TargetID), slog.Int64("id", id))

	return id, nil
}

// Claim atomically claims the next eligible action, or returns (nil, nil)
// if the queue is empty.
func (q *Queue) Claim(ctx context.Context) (*store.Action, error) {
	return q.store.ClaimNext(ctx)
}

// ClaimByTypes atomically claims the next eligible action restricted to
// types, or returns (nil, nil) if none are eligible. Used by the metadata
// worker to claim only list_children/rename/move/ensure_latest actions.
func (q *Queue) ClaimByTypes(ctx context.Context, types []store.ActionType) (*store.Action, error) {
	return q.store.ClaimNextByTypes(ctx, types)
}

// Complete marks an action as completed.
func (q *Queue) Complete(ctx context.Context, id int64) error {
	return q.store.Complete(ctx, id)
}

// Fail records a failed attempt against action a, computing the next
// eligible retry time from an exponential backoff with jitter. Once
// retryCount reaches maxRetries, the Store marks the action permanently
// failed instead of rescheduling it.
func (q *Queue) Fail(ctx context.Context, a *store.Action, cause error) error {
	delay, err := q.backoffDelay(a.RetryCount)
	if err != nil {
		return fmt.Errorf("actionqueue: compute backoff: %w", err)
	}

	notBefore := store.NowNano() + delay.Nanoseconds()

	if ferr := q.store.Fail(ctx, a.ID, sanitizeError(cause), notBefore, a.RetryCount, q.maxRetries); ferr != nil {
		return ferr
	}

	q.logger.Warn("action failed",
		slog.String("type", string(a.Type)), slog.String("target_id", a.TargetID),
		slog.Int("retry_count", a.RetryCount+1), slog.Duration("next_attempt_in", delay),
		slog.String("error", sanitizeError(cause)))

	return nil
}

// Cancel removes any pending/processing action against targetID.
func (q *Queue) Cancel(ctx context.Context, targetID string) error {
	return q.store.Cancel(ctx, targetID)
}

// backoffDelay computes the delay before the (retryCount+1)th attempt using
// go-retry's exponential-with-jitter backoff, capped at maxDelay.
func (q *Queue) backoffDelay(retryCount int) (time.Duration, error) {
	b, err := retry.NewExponential(q.baseDelay)
	if err != nil {
		return 0, fmt.Errorf("build backoff: %w", err)
	}

	b = retry.WithMaxDelay(q.maxDelay, b)
	b = retry.WithJitterPercent(20, b)

	var delay time.Duration

	for i := 0; i <= retryCount; i++ {
		d, stop := b.Next()
		if stop {
			return q.maxDelay, nil
		}

		delay = d
	}

	return delay, nil
}

// sanitizeError renders cause as a string safe to persist and log: no
// credential material ever reaches last_error (spec.md section 7:
// "No credential material is ever logged").
func sanitizeError(cause error) string {
	if cause == nil {
		return ""
	}

	return cause.Error()
}
