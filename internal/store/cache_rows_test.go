package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEntryLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	none, err := s.GetCacheEntry(ctx, o.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	entry := &CacheEntry{
		ObjectID:       o.ID,
		LocalPath:      "/cache/" + o.ID,
		Size:           1024,
		PresentLocally: PresentSparse,
		LastAccessed:   NowNano(),
	}
	require.NoError(t, s.UpsertCacheEntry(ctx, entry))

	got, err := s.GetCacheEntry(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, PresentSparse, got.PresentLocally)

	require.NoError(t, s.TouchCacheEntry(ctx, o.ID, true))

	touched, err := s.GetCacheEntry(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, touched.OpenCount)

	require.NoError(t, s.SetPinned(ctx, o.ID, true))

	pinned, err := s.ListPinned(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, o.ID, pinned[0].ObjectID)
}

func TestListEvictionCandidatesExcludesPinnedAndOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	evictable := seedObject(t, s)
	pinned := seedObject(t, s)
	open := seedObject(t, s)

	for _, c := range []*CacheEntry{
		{ObjectID: evictable.ID, LocalPath: "a", PresentLocally: PresentFull, LastAccessed: 1},
		{ObjectID: pinned.ID, LocalPath: "b", PresentLocally: PresentFull, Pinned: true, LastAccessed: 2},
		{ObjectID: open.ID, LocalPath: "c", PresentLocally: PresentFull, OpenCount: 1, LastAccessed: 3},
	} {
		require.NoError(t, s.UpsertCacheEntry(ctx, c))
	}

	candidates, err := s.ListEvictionCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, evictable.ID, candidates[0].ObjectID)
}
