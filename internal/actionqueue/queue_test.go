package actionqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return New(s, testLogger(), 3, time.Millisecond, 10*time.Millisecond), s
}

func seedObject(t *testing.T, s *store.Store) *store.Object {
	t.Helper()

	o := &store.Object{
		ID: uuid.NewString(), Type: store.TypeFile, Name: uuid.NewString() + ".txt",
		Origin: store.OriginLocal, SyncState: store.StatePendingPush,
	}
	require.NoError(t, s.CreateLocalObject(context.Background(), o))

	return o
}

func TestQueueEnqueueAndClaim(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	o := seedObject(t, s)

	id, err := q.Enqueue(ctx, &store.Action{Type: store.ActionUpload, TargetID: o.ID, Direction: store.DirectionPush, Priority: 1})
	require.NoError(t, err)
	assert.NotZero(t, id)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, id, claimed.ID)

	require.NoError(t, q.Complete(ctx, claimed.ID))
}

func TestQueueFailSetsNotBeforeInFuture(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	o := seedObject(t, s)

	_, err := q.Enqueue(ctx, &store.Action{Type: store.ActionDownload, TargetID: o.ID, Direction: store.DirectionPull, Priority: 1})
	require.NoError(t, err)

	claimed, err := q.Claim(ctx)
	require.NoError(t, err)

	before := store.NowNano()
	require.NoError(t, q.Fail(ctx, claimed, errors.New("connection reset")))

	failed, err := s.ListFailed(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed, "first failure must still be retryable")

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var notBefore int64
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT not_before FROM actions WHERE id = ?`, claimed.ID).Scan(&notBefore))
	assert.Greater(t, notBefore, before, "a retryable failure must gate the next attempt after the failure time")
}

func TestQueueFailExhaustsRetriesToPermanentFailure(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	o := seedObject(t, s)

	_, err := q.Enqueue(ctx, &store.Action{Type: store.ActionUpload, TargetID: o.ID, Direction: store.DirectionPush, Priority: 1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		claimed, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed, "attempt %d", i)

		require.NoError(t, q.Fail(ctx, claimed, errors.New("still failing")))

		// Force the backoff gate open immediately so the next Claim in this
		// tight test loop can see the re-pending row without sleeping.
		_, execErr := s.DB().ExecContext(ctx, `UPDATE actions SET not_before = 0 WHERE id = ?`, claimed.ID)
		require.NoError(t, execErr)
	}

	failed, err := s.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "still failing", failed[0].LastError)
}

func TestQueueCancel(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	o := seedObject(t, s)

	_, err := q.Enqueue(ctx, &store.Action{Type: store.ActionUpload, TargetID: o.ID, Direction: store.DirectionPush, Priority: 1})
	require.NoError(t, err)

	require.NoError(t, q.Cancel(ctx, o.ID))

	n, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
