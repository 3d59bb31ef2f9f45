// Package refserver is a reference replication and realtime server
// standing in for "the server's authoritative storage engine" and its
// realtime collaborator (spec §1 Out of scope: the core sees the
// server only through the replication and snapshot endpoints it
// consumes). It exists so the engine's HTTP transport and realtime
// client have something real to dial in tests and local development;
// its internals are deliberately generic rather than a faithful
// reproduction of any particular production server.
//
// Adapted from the teacher's internal/httpapi/router.go: the same
// chi route-tree-with-nested-middleware-groups shape, generalized from
// per-entity (notes/comments/chats) services to the single generic
// records table in schema.go.
package refserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuscorp/syncengine/internal/authctx"
	"github.com/nimbuscorp/syncengine/internal/realtime"
)

// Server wires the reference server's dependencies and exposes its
// chi.Router for both production use (cmd/refserver) and
// httptest.Server-backed integration tests.
type Server struct {
	DB     *pgxpool.Pool
	Hub    *realtime.Hub
	JWTCfg authctx.JWTCfg
	router chi.Router
}

// NewServer constructs a Server and builds its route tree.
func NewServer(db *pgxpool.Pool, hub *realtime.Hub, jwtCfg authctx.JWTCfg) *Server {
	s := &Server{DB: db, Hub: hub, JWTCfg: jwtCfg}
	s.router = s.routes()
	return s
}

// Router returns the http.Handler for use with http.Server or
// httptest.NewServer.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Head("/ping", s.handlePing)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/sync/push", s.handlePush)
		r.Get("/sync/pull", s.handlePull)
		r.Get("/sync/snapshot/{entityType}/{id}", s.handleSnapshot)
		r.Get("/realtime", s.handleRealtimeUpgrade)
	})

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
