package fuseproj

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/actionqueue"
	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/store"
)

const testChunkSize = 8 << 20

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFS(t *testing.T) (*FS, *store.Store) {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	cache := cachefs.New(t.TempDir(), s, testLogger(), 32<<20, testChunkSize, 1<<30)
	queue := actionqueue.New(s, testLogger(), 8, 10*time.Millisecond, time.Second)
	cfg := config.DefaultConfig()

	return New(s, cache, queue, cfg, testLogger()), s
}

// TestRemove_CancelsPendingPush covers spec.md section 4.3's coalescing
// rule: deleting an object must cancel any push already queued against it,
// so a worker never runs a stale upload/update_content against something
// already marked deleted.
func TestRemove_CancelsPendingPush(t *testing.T) {
	f, s := newTestFS(t)
	ctx := context.Background()

	o := &store.Object{
		ID: uuid.NewString(), Type: store.TypeFile, Name: "doomed.txt",
		Origin: store.OriginLocal, SyncState: store.StateDirty, Dirty: true,
	}
	require.NoError(t, s.UpsertObject(ctx, o))

	_, err := s.Enqueue(ctx, &store.Action{
		Type: store.ActionUpload, TargetID: o.ID, Direction: store.DirectionPush,
	})
	require.NoError(t, err)

	root := f.Root().(*Node)
	errno := root.remove(ctx, "doomed.txt")
	assert.Equal(t, int(0), int(errno))

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "the stale upload must be cancelled, leaving only the delete")

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, store.ActionDelete, claimed.Type)
}

// TestRemove_NoSuchChild covers the not-found path.
func TestRemove_NoSuchChild(t *testing.T) {
	f, _ := newTestFS(t)
	ctx := context.Background()

	root := f.Root().(*Node)
	errno := root.remove(ctx, "ghost.txt")
	assert.NotEqual(t, int(0), int(errno))
}
