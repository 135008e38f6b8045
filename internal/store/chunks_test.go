package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkChunkPresentAndHasChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	present, err := s.HasChunk(ctx, o.ID, 0)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, s.MarkChunkPresent(ctx, o.ID, 0))
	require.NoError(t, s.MarkChunkPresent(ctx, o.ID, 2))

	present, err = s.HasChunk(ctx, o.ID, 0)
	require.NoError(t, err)
	assert.True(t, present)

	present, err = s.HasChunk(ctx, o.ID, 1)
	require.NoError(t, err)
	assert.False(t, present)

	all, err := s.ListPresentChunks(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2}, all)
}

func TestClearChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedObject(t, s)

	require.NoError(t, s.MarkChunkPresent(ctx, o.ID, 0))
	require.NoError(t, s.ClearChunks(ctx, o.ID))

	all, err := s.ListPresentChunks(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}
