package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/errdefs"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/registry"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

// Server is the REST façade over the engine. It only marshals requests
// into registry and store operations; no engine logic lives here.
type Server struct {
	registry *registry.Registry
	logger   zerolog.Logger
	http     *http.Server
}

// NewServer builds the HTTP server for a registry.
func NewServer(reg *registry.Registry, addr string) *Server {
	s := &Server{
		registry: reg,
		logger:   log.WithComponent("api"),
	}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /memories", s.handleAddMemory)
	mux.HandleFunc("GET /memories", s.handleListMemories)
	mux.HandleFunc("GET /memories/due", s.handleDueMemories)
	mux.HandleFunc("GET /memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PUT /memories/{id}", s.handleUpdateMemory)
	mux.HandleFunc("DELETE /memories/{id}", s.handleDeleteMemory)
	mux.HandleFunc("POST /memories/search", s.handleSearch)
	mux.HandleFunc("GET /memories/{id}/relationships", s.handleGetRelationships)
	mux.HandleFunc("GET /memories/{id}/related", s.handleRelatedMemories)

	mux.HandleFunc("POST /relationships", s.handleAddRelationship)
	mux.HandleFunc("DELETE /relationships/{id}", s.handleDeleteRelationship)

	mux.HandleFunc("POST /forks", s.handleCreateFork)
	mux.HandleFunc("POST /forks/pitr", s.handleCreateForkPITR)
	mux.HandleFunc("GET /forks", s.handleListForks)
	mux.HandleFunc("DELETE /forks/{id}", s.handleDeleteFork)

	mux.HandleFunc("POST /snapshots", s.handleCreateSnapshot)
	mux.HandleFunc("GET /snapshots", s.handleListSnapshots)
	mux.HandleFunc("POST /snapshots/{id}/restore", s.handleRestoreSnapshot)

	mux.HandleFunc("POST /store/verify", s.handleVerify)
	mux.HandleFunc("POST /store/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /store/stats", s.handleStats)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("api server listening")
	return s.http.ListenAndServe()
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		s.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// storeFrom resolves the target store from the ?store= query parameter,
// defaulting to main.
func (s *Server) storeFrom(req *http.Request) (*store.Store, error) {
	id := req.URL.Query().Get("store")
	if id == "" {
		id = types.MainStoreID
	}
	return s.registry.Get(id)
}

// errorBody is the wire shape of every failure.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errdefs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: errdefs.Kind(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(req *http.Request, v interface{}) error {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		return errdefs.InvalidArgf("malformed request body: %v", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
