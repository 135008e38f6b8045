package fuseproj

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/store"
)

// TestWriteRelease_UploadDeferredUntilLastHandleCloses covers spec.md
// section 4.6: the upload is scheduled on release, not on every write, and
// only once the object's last open handle has actually closed.
func TestWriteRelease_UploadDeferredUntilLastHandleCloses(t *testing.T) {
	f, s := newTestFS(t)
	ctx := context.Background()

	o := &store.Object{
		ID: uuid.NewString(), Type: store.TypeFile, Name: "open-twice.txt",
		Origin: store.OriginLocal, SyncState: store.StateSynced,
	}
	require.NoError(t, s.UpsertObject(ctx, o))
	require.NoError(t, s.UpsertCacheEntry(ctx, &store.CacheEntry{ObjectID: o.ID, LocalPath: o.ID}))

	// Simulate two concurrent opens of the same file.
	require.NoError(t, s.TouchCacheEntry(ctx, o.ID, true))
	require.NoError(t, s.TouchCacheEntry(ctx, o.ID, true))

	h := &fileHandle{fsys: f, objectID: o.ID}

	n, errno := h.Write(ctx, []byte("hello"), 0)
	require.Equal(t, int(0), int(errno))
	assert.Equal(t, uint32(5), n)

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending, "Write must not itself enqueue an upload")

	errno = h.Release(ctx)
	require.Equal(t, int(0), int(errno))

	pending, err = s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending, "a second handle is still open, so no upload should be scheduled yet")

	errno = h.Release(ctx)
	require.Equal(t, int(0), int(errno))

	pending, err = s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "the last handle closing must schedule the deferred upload")
}
