package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
	"github.com/orchardfs/orchard/internal/syncengine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *store.Store, *syncengine.Engine) {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	adapter := remote.NewMockAdapter()
	cache := cachefs.New(t.TempDir(), s, testLogger(), 32<<20, 8<<20, 1<<30)
	cfg := config.DefaultConfig()

	engine := syncengine.NewEngine(syncengine.EngineConfig{
		Store: s, Cache: cache, Adapter: adapter, Config: cfg, Logger: testLogger(),
	})

	return New(engine, s, testLogger()), s, engine
}

func TestHandleStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Paused)
	assert.Equal(t, 0, resp.ConflictCount)
}

func TestHandleStatusRejectsPost(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	w := httptest.NewRecorder()

	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandlePauseResume(t *testing.T) {
	srv, _, engine := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, engine.Paused())

	req = httptest.NewRequest(http.MethodPost, "/resume", nil)
	w = httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, engine.Paused())
}

func TestHandleConflictsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/conflicts", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var objs []*store.Object
	require.NoError(t, json.NewDecoder(w.Body).Decode(&objs))
	assert.Empty(t, objs)
}

func TestHandleResolveMissingObject(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/resolve/does-not-exist?choice=local", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleResolveMissingID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/resolve/", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePinUnknownObject(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pin/does-not-exist", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePinInvalidPinnedValue(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pin/some-id?pinned=notabool", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.GetHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
