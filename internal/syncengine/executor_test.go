package syncengine

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

const testChunkSize = 8 << 20

func newTestExecutor(t *testing.T) (*Executor, *store.Store, *cachefs.Cache, *remote.MockAdapter) {
	t.Helper()

	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	cache := cachefs.New(t.TempDir(), s, testLogger(), 32<<20, testChunkSize, 1<<30)

	bigDelete := NewBigDeleteGuard(config.SafetyConfig{BigDeleteMinItems: 10, BigDeleteMaxCount: 1000, BigDeleteMaxPercent: 50}, testLogger())
	conflict := NewConflictResolver(s, adapter, config.ConflictLocalWins, testLogger())
	exec := NewExecutor(s, cache, adapter, conflict, bigDelete, testChunkSize, testLogger())

	return exec, s, cache, adapter
}

// TestListChildren_NewRemoteFileCreatesLocalObject covers the first
// end-to-end scenario: a file that exists only on the remote side is
// discovered and projected locally as pending_pull.
func TestListChildren_NewRemoteFileCreatesLocalObject(t *testing.T) {
	exec, s, _, adapter := newTestExecutor(t)
	ctx := context.Background()

	_, err := adapter.Upload(ctx, "", "hello.txt", bytes.NewReader([]byte("hi")), 2, "")
	require.NoError(t, err)

	err = exec.Dispatch(ctx, &store.Action{Type: store.ActionListChildren, TargetID: ""})
	require.NoError(t, err)

	children, err := s.ListChildren(ctx, "")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "hello.txt", children[0].Name)
	assert.Equal(t, store.StatePendingPull, children[0].SyncState)
	assert.Equal(t, store.OriginCloud, children[0].Origin)
}

// TestListChildren_TombstonesMissingChild covers the delete-propagation
// scenario: a previously-known cloud-origin child absent from a fresh
// listing is tombstoned and a delete action enqueued.
func TestListChildren_TombstonesMissingChild(t *testing.T) {
	exec, s, _, adapter := newTestExecutor(t)
	ctx := context.Background()

	result, err := adapter.Upload(ctx, "", "bye.txt", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: "bye.txt",
		Size: 1, ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StateSynced,
	}
	require.NoError(t, s.UpsertObject(ctx, o))

	require.NoError(t, adapter.Delete(ctx, result.CloudID, ""))

	err = exec.Dispatch(ctx, &store.Action{Type: store.ActionListChildren, TargetID: ""})
	require.NoError(t, err)

	reloaded, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.MissingFromCloud)
	assert.Equal(t, store.StateDeletedCloud, reloaded.SyncState)

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "a delete action must be enqueued for the tombstoned child")
}

// TestListChildren_TombstoneCancelsPendingPush covers spec.md section
// 4.3's coalescing rule from the remote-delete direction: a push already
// queued against an object must not survive that object being tombstoned
// by a listing that no longer contains it.
func TestListChildren_TombstoneCancelsPendingPush(t *testing.T) {
	exec, s, _, adapter := newTestExecutor(t)
	ctx := context.Background()

	result, err := adapter.Upload(ctx, "", "stale.txt", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: "stale.txt",
		Size: 1, ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StateDirty, Dirty: true,
	}
	require.NoError(t, s.UpsertObject(ctx, o))

	_, err = s.Enqueue(ctx, &store.Action{
		Type: store.ActionUpdateContent, TargetID: o.ID, Direction: store.DirectionPush,
	})
	require.NoError(t, err)

	require.NoError(t, adapter.Delete(ctx, result.CloudID, ""))

	err = exec.Dispatch(ctx, &store.Action{Type: store.ActionListChildren, TargetID: ""})
	require.NoError(t, err)

	pending, err := s.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "the stale update_content push must be cancelled, leaving only the tombstone delete")

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, store.ActionDelete, claimed.Type, "the only remaining action must be the tombstone delete, not the cancelled push")
}

// TestHandleDownload_FullDownloadPopulatesCache covers the download
// scenario: a pending_pull file gets its content fetched and cached.
func TestHandleDownload_FullDownloadPopulatesCache(t *testing.T) {
	exec, s, cache, adapter := newTestExecutor(t)
	ctx := context.Background()

	content := []byte("the quick brown fox")
	result, err := adapter.Upload(ctx, "", "fox.txt", bytes.NewReader(content), int64(len(content)), "")
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: "fox.txt",
		Size: int64(len(content)), ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StatePendingPull,
	}
	require.NoError(t, s.UpsertObject(ctx, o))

	require.NoError(t, exec.Dispatch(ctx, &store.Action{Type: store.ActionDownload, TargetID: o.ID}))

	entry, err := s.GetCacheEntry(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, store.PresentFull, entry.PresentLocally)
	assert.NotEmpty(t, entry.FileHash)

	rc, err := cache.Open(ctx, o.ID)
	require.NoError(t, err)
	defer rc.Close()

	reloaded, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateSynced, reloaded.SyncState)
}

// TestHandleUpload_NewLocalFileGetsCloudID covers the upload scenario: a
// locally-created file is pushed and receives a cloud_id/etag.
func TestHandleUpload_NewLocalFileGetsCloudID(t *testing.T) {
	exec, s, cache, adapter := newTestExecutor(t)
	ctx := context.Background()

	o := &store.Object{ID: uuid.NewString(), Type: store.TypeFile, Name: "new.txt", Size: 5}
	require.NoError(t, s.CreateLocalObject(ctx, o))

	require.NoError(t, cache.Reserve(ctx, o.ID, 5, false))
	require.NoError(t, cache.WriteChunk(ctx, o.ID, 0, []byte("hello")))

	require.NoError(t, exec.Dispatch(ctx, &store.Action{Type: store.ActionUpload, TargetID: o.ID}))

	reloaded, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.CloudID)
	assert.Equal(t, store.StateSynced, reloaded.SyncState)

	entries, err := adapter.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.txt", entries[0].Name)
}

// TestHandleUpdateContent_PreconditionFailureEntersConflict covers the
// content-conflict scenario: a stale if-match during update_content routes
// into the conflict protocol rather than failing outright.
func TestHandleUpdateContent_PreconditionFailureEntersConflict(t *testing.T) {
	exec, s, cache, adapter := newTestExecutor(t)
	ctx := context.Background()

	result, err := adapter.Upload(ctx, "", "doc.txt", bytes.NewReader([]byte("v1")), 2, "")
	require.NoError(t, err)

	// Someone else updates the remote object, advancing its etag past what
	// our shadow knows about.
	_, err = adapter.Upload(ctx, "", "doc.txt", bytes.NewReader([]byte("v2-remote")), 9, result.ETag)
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: "doc.txt",
		Size: 2, ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StateDirty, Dirty: true,
	}
	require.NoError(t, s.UpsertObject(ctx, o))
	require.NoError(t, s.UpsertShadow(ctx, &store.Shadow{ObjectID: o.ID, CloudID: result.CloudID, Name: "doc.txt", ETag: result.ETag}))

	require.NoError(t, cache.Reserve(ctx, o.ID, 2, false))
	require.NoError(t, cache.WriteChunk(ctx, o.ID, 0, []byte("v3")))

	err = exec.Dispatch(ctx, &store.Action{Type: store.ActionUpdateContent, TargetID: o.ID})
	require.NoError(t, err)

	reloaded, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.ConflictHistory, "a precondition failure must record a conflict")
}

// TestHandleDelete_LocalDeletePropagatesToRemote covers the local-delete
// scenario: deleted_local purges the remote object and local bookkeeping.
func TestHandleDelete_LocalDeletePropagatesToRemote(t *testing.T) {
	exec, s, _, adapter := newTestExecutor(t)
	ctx := context.Background()

	result, err := adapter.Upload(ctx, "", "gone.txt", bytes.NewReader([]byte("x")), 1, "")
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: "gone.txt",
		Size: 1, ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StateDeletedLocal,
	}
	require.NoError(t, s.UpsertObject(ctx, o))
	require.NoError(t, s.UpsertShadow(ctx, &store.Shadow{ObjectID: o.ID, CloudID: result.CloudID, Name: "gone.txt", ETag: result.ETag}))

	require.NoError(t, exec.Dispatch(ctx, &store.Action{Type: store.ActionDelete, TargetID: o.ID}))

	_, err = adapter.Metadata(ctx, result.CloudID)
	assert.ErrorIs(t, err, remote.ErrNotFound)

	reloaded, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded, "a fully propagated local delete purges the object row")
}

// TestHandleDelete_IsIdempotent covers re-running a delete action whose
// target row was already purged.
func TestHandleDelete_IsIdempotent(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)
	ctx := context.Background()

	err := exec.Dispatch(ctx, &store.Action{Type: store.ActionDelete, TargetID: uuid.NewString()})
	assert.NoError(t, err)
}

// TestDispatch_UnknownActionType covers the logic-invariant path.
func TestDispatch_UnknownActionType(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t)

	err := exec.Dispatch(context.Background(), &store.Action{Type: "bogus", TargetID: "x"})
	assert.ErrorIs(t, err, ErrLogicInvariant)
}
