package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverOrphanedActions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	_, err := s.Enqueue(ctx, &Action{Type: ActionUpload, TargetID: o.ID, Direction: DirectionPush, Priority: 1})
	require.NoError(t, err)

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, ActionProcessing, claimed.Status)

	n, err := s.RecoverOrphanedActions(ctx, testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	reclaimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, claimed.ID, reclaimed.ID)
}

func TestCleanupTombstonesRemovesOldDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	require.NoError(t, s.MarkDeleted(ctx, o.ID, StateDeletedLocal))

	_, err := s.db.ExecContext(ctx, `UPDATE objects SET updated_at = 1 WHERE id = ?`, o.ID)
	require.NoError(t, err)

	n, err := s.CleanupTombstones(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestOrphanedCacheFiles exercises the consistency-check query directly: it
// crafts a cache_entries row with no matching object by running the delete
// on a connection with foreign key enforcement temporarily off, simulating
// the scenario the check guards against (a write that reached a pooled
// connection where the per-connection FK pragma was never re-applied).
func TestOrphanedCacheFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	require.NoError(t, s.UpsertCacheEntry(ctx, &CacheEntry{ObjectID: o.ID, LocalPath: "/cache/" + o.ID}))

	conn, err := s.db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, o.ID)
	require.NoError(t, err)

	orphans, err := s.OrphanedCacheFiles(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "/cache/"+o.ID, orphans[0])
}
