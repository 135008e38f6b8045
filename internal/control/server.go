// Package control implements the loopback control/query HTTP surface
// (spec.md section 6: "GET /status, GET /conflicts, POST /resolve/{id},
// POST /pin/{id}, POST /pause, POST /resume"), grounded on
// cuemby-warren/pkg/api/health.go's plain net/http.ServeMux pattern — no
// web framework, JSON responses, one handler method per endpoint.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/orchardfs/orchard/internal/metrics"
	"github.com/orchardfs/orchard/internal/store"
	"github.com/orchardfs/orchard/internal/syncengine"
)

// Server exposes the sync engine's status and lets an operator resolve
// conflicts, pin files, and pause/resume syncing without unmounting.
type Server struct {
	engine *syncengine.Engine
	store  *store.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server wired to engine and store. Call GetHandler (or Start)
// to begin serving.
func New(engine *syncengine.Engine, s *store.Store, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	srv := &Server{engine: engine, store: s, logger: logger, mux: mux}

	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/conflicts", srv.handleConflicts)
	mux.HandleFunc("/resolve/", srv.handleResolve)
	mux.HandleFunc("/pin/", srv.handlePin)
	mux.HandleFunc("/pause", srv.handlePause)
	mux.HandleFunc("/resume", srv.handleResume)
	mux.Handle("/metrics", metrics.Handler())

	return srv
}

// Start runs the server on addr until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// GetHandler returns the HTTP handler for embedding or testing.
func (s *Server) GetHandler() http.Handler {
	return s.mux
}

// statusResponse is the GET /status payload.
type statusResponse struct {
	Online          bool  `json:"online"`
	Paused          bool  `json:"paused"`
	PendingActions  int   `json:"pending_actions"`
	Succeeded       int64 `json:"succeeded"`
	Failed          int64 `json:"failed"`
	CacheBytesUsed  int64 `json:"cache_bytes_used"`
	ConflictCount   int   `json:"conflict_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	ctx := r.Context()

	pending, err := s.store.CountPending(ctx)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, err)
		return
	}

	cacheBytes, err := s.store.CacheUsageBytes(ctx)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, err)
		return
	}

	conflicts, err := s.engine.ListConflicts(ctx)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, err)
		return
	}

	succeeded, failed, _ := s.engine.Stats()

	writeJSON(w, s.logger, http.StatusOK, statusResponse{
		Online:         s.engine.Online(),
		Paused:         s.engine.Paused(),
		PendingActions: pending,
		Succeeded:      succeeded,
		Failed:         failed,
		CacheBytesUsed: cacheBytes,
		ConflictCount:  len(conflicts),
	})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	conflicts, err := s.engine.ListConflicts(r.Context())
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, s.logger, http.StatusOK, conflicts)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/resolve/")
	if id == "" {
		http.Error(w, "missing object id", http.StatusBadRequest)
		return
	}

	choice := r.URL.Query().Get("choice")

	err := s.engine.ResolveConflict(r.Context(), id, choice)

	switch {
	case errors.Is(err, syncengine.ErrObjectNotFound):
		http.Error(w, "object not found", http.StatusNotFound)
	case errors.Is(err, syncengine.ErrNotInConflict):
		http.Error(w, "object is not in conflict", http.StatusConflict)
	case err != nil:
		writeError(w, s.logger, http.StatusBadRequest, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/pin/")
	if id == "" {
		http.Error(w, "missing object id", http.StatusBadRequest)
		return
	}

	pinned := true
	if v := r.URL.Query().Get("pinned"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid pinned value", http.StatusBadRequest)
			return
		}

		pinned = parsed
	}

	if err := s.engine.SetPin(r.Context(), id, pinned); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.engine.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.engine.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("control: encode response failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	logger.Error("control: request failed", slog.Int("status", status), slog.String("error", err.Error()))
	http.Error(w, err.Error(), status)
}
