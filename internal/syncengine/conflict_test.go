package syncengine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func seedCloudObject(t *testing.T, s *store.Store, adapter *remote.MockAdapter, name string, content []byte) *store.Object {
	t.Helper()

	ctx := context.Background()

	result, err := adapter.Upload(ctx, "", name, bytes.NewReader(content), int64(len(content)), "")
	require.NoError(t, err)

	o := &store.Object{
		ID: uuid.NewString(), CloudID: result.CloudID, Type: store.TypeFile, Name: name,
		Size: int64(len(content)), ETag: result.ETag, Origin: store.OriginCloud, SyncState: store.StateSynced,
	}
	require.NoError(t, s.UpsertObject(ctx, o))
	require.NoError(t, s.UpsertShadow(ctx, &store.Shadow{
		ObjectID: o.ID, CloudID: result.CloudID, Name: name, ETag: result.ETag, ModifiedAt: time.Now().UnixNano(),
	}))

	return o
}

func TestConflictResolver_LocalWins(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	o := seedCloudObject(t, s, adapter, "report.txt", []byte("remote content"))

	o.Dirty = true
	o.SyncState = store.StateDirty
	require.NoError(t, s.UpsertObject(context.Background(), o))

	sh, err := s.GetShadow(context.Background(), o.ID)
	require.NoError(t, err)

	r := NewConflictResolver(s, adapter, config.ConflictLocalWins, testLogger())

	observed, err := adapter.Metadata(context.Background(), sh.CloudID)
	require.NoError(t, err)

	next, err := r.ResolveContent(context.Background(), o, sh, observed)
	require.NoError(t, err)
	assert.Equal(t, NextUpload, next)
	assert.Empty(t, o.CloudID)
	assert.True(t, o.Dirty)
	assert.Equal(t, store.StatePendingPush, o.SyncState)

	_, err = adapter.Metadata(context.Background(), sh.CloudID)
	assert.ErrorIs(t, err, remote.ErrNotFound, "local wins must delete the displaced remote object")

	reloaded, err := s.GetObject(context.Background(), o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, reloaded.ConflictHistory, "conflict must be recorded for audit")
}

func TestConflictResolver_RemoteWins(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	o := seedCloudObject(t, s, adapter, "report.txt", []byte("remote content"))

	o.Dirty = true
	sh, err := s.GetShadow(context.Background(), o.ID)
	require.NoError(t, err)

	r := NewConflictResolver(s, adapter, config.ConflictRemoteWins, testLogger())

	next, err := r.ResolveContent(context.Background(), o, sh, remote.Metadata{ETag: "remote-etag-2"})
	require.NoError(t, err)
	assert.Equal(t, NextDownload, next)
	assert.False(t, o.Dirty)
	assert.Equal(t, store.StatePendingPull, o.SyncState)
}

func TestConflictResolver_Manual(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	o := seedCloudObject(t, s, adapter, "report.txt", []byte("remote content"))

	sh, err := s.GetShadow(context.Background(), o.ID)
	require.NoError(t, err)

	r := NewConflictResolver(s, adapter, config.ConflictManual, testLogger())

	next, err := r.ResolveContent(context.Background(), o, sh, remote.Metadata{ETag: "remote-etag-2"})
	require.NoError(t, err)
	assert.Equal(t, NextNone, next)
	assert.Equal(t, store.StateConflict, o.SyncState)
}

func TestConflictResolver_DefaultsToLocalWinsOnEmptyPolicy(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()

	r := NewConflictResolver(s, adapter, "", testLogger())
	assert.Equal(t, config.ConflictLocalWins, r.policy)
}

func TestResolveDeleteVsEdit(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	o := seedCloudObject(t, s, adapter, "report.txt", []byte("x"))

	r := NewConflictResolver(s, adapter, config.ConflictLocalWins, testLogger())

	next, err := r.ResolveDeleteVsEdit(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, NextUpload, next)
	assert.Empty(t, o.CloudID)
	assert.Equal(t, store.StatePendingPush, o.SyncState)
}

func TestResolveEditVsDelete(t *testing.T) {
	s := newTestStore(t)
	adapter := remote.NewMockAdapter()
	o := seedCloudObject(t, s, adapter, "report.txt", []byte("x"))
	o.Deleted = true

	r := NewConflictResolver(s, adapter, config.ConflictLocalWins, testLogger())

	next, err := r.ResolveEditVsDelete(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, NextDownload, next)
	assert.False(t, o.Deleted)
	assert.Equal(t, store.StatePendingPull, o.SyncState)
}
