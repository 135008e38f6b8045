package remote

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapterUploadThenDownload(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	res, err := m.Upload(ctx, "", "hello.txt", strings.NewReader("hello world"), 11, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.CloudID)

	rc, err := m.DownloadRange(ctx, res.CloudID, 0, 11, "")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestMockAdapterListReturnsChildren(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	folder, err := m.CreateFolder(ctx, "", "Documents")
	require.NoError(t, err)

	_, err = m.Upload(ctx, folder.CloudID, "a.txt", strings.NewReader("a"), 1, "")
	require.NoError(t, err)

	entries, err := m.List(ctx, folder.CloudID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
}

func TestMockAdapterPreconditionFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	res, err := m.Upload(ctx, "", "f.txt", strings.NewReader("v1"), 2, "")
	require.NoError(t, err)

	_, err = m.Rename(ctx, res.CloudID, "g.txt", "stale-etag")
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestMockAdapterDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	err := m.Delete(ctx, "does-not-exist", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockAdapterFailNextInjectsOneFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	boom := errors.New("simulated transient failure")
	m.FailNext = boom

	_, err := m.Upload(ctx, "", "f.txt", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, boom)

	_, err = m.Upload(ctx, "", "g.txt", strings.NewReader("y"), 1, "")
	assert.NoError(t, err)
}

func TestMockAdapterDownloadRangeNotModified(t *testing.T) {
	ctx := context.Background()
	m := NewMockAdapter()

	res, err := m.Upload(ctx, "", "f.txt", strings.NewReader("content"), 7, "")
	require.NoError(t, err)

	_, err = m.DownloadRange(ctx, res.CloudID, 0, 7, res.ETag)
	assert.ErrorIs(t, err, ErrNotModified)
}
