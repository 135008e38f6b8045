package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestObject(parentID, name string, typ ObjectType) *Object {
	now := NowNano()

	return &Object{
		ID:        uuid.NewString(),
		Type:      typ,
		ParentID:  parentID,
		Name:      name,
		Origin:    OriginLocal,
		SyncState: StatePendingPush,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateLocalObjectAndResolvePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := makeTestObject("", "Documents", TypeFolder)
	require.NoError(t, s.CreateLocalObject(ctx, root))

	child := makeTestObject(root.ID, "notes.txt", TypeFile)
	require.NoError(t, s.CreateLocalObject(ctx, child))

	got, err := s.ResolvePath(ctx, []string{"Documents", "notes.txt"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, child.ID, got.ID)
	assert.Equal(t, OriginLocal, got.Origin)
}

func TestResolvePathMissingComponent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.ResolvePath(ctx, []string{"nope", "still-nope"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListChildrenExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	root := makeTestObject("", "Photos", TypeFolder)
	require.NoError(t, s.CreateLocalObject(ctx, root))

	a := makeTestObject(root.ID, "a.jpg", TypeFile)
	b := makeTestObject(root.ID, "b.jpg", TypeFile)
	require.NoError(t, s.CreateLocalObject(ctx, a))
	require.NoError(t, s.CreateLocalObject(ctx, b))

	require.NoError(t, s.MarkDeleted(ctx, b.ID, StateDeletedLocal))

	children, err := s.ListChildren(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a.jpg", children[0].Name)
}

func TestMarkDirtyRejectsInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := makeTestObject("", "f.txt", TypeFile)
	o.SyncState = StateDeletedLocal
	require.NoError(t, s.CreateLocalObject(ctx, o))

	err := s.MarkDirty(ctx, o.ID, StateDeletedLocal)
	assert.Error(t, err)
}

func TestApplyUploadSuccessTransitionsToSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := makeTestObject("", "report.pdf", TypeFile)
	require.NoError(t, s.CreateLocalObject(ctx, o))

	require.NoError(t, s.ApplyUploadSuccess(ctx, o.ID, "cloud-123", "etag-1", "rev-1"))

	got, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSynced, got.SyncState)
	assert.Equal(t, "cloud-123", got.CloudID)
	assert.False(t, got.Dirty)
}

func TestApplyRemoteDeltaPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := &Object{
		ID:        uuid.NewString(),
		Type:      TypeFile,
		Name:      "remote.txt",
		Origin:    OriginCloud,
		CloudID:   "cloud-1",
		SyncState: StatePendingPull,
	}
	require.NoError(t, s.ApplyRemoteDelta(ctx, o))

	first, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	originalCreated := first.CreatedAt

	o.Size = 42
	require.NoError(t, s.ApplyRemoteDelta(ctx, o))

	second, err := s.GetObject(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, originalCreated, second.CreatedAt)
	assert.Equal(t, int64(42), second.Size)
}
