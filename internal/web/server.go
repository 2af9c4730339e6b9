// Package web provides the HTTP API of the smartbatch daemon: table
// introspection plus adaptive insert, update and upsert over JSON row
// payloads.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quartzdata/smartbatch"
	"github.com/quartzdata/smartbatch/internal/config"
	"github.com/quartzdata/smartbatch/internal/web/middleware"
	"github.com/quartzdata/smartbatch/pgxstore"
	"github.com/quartzdata/smartbatch/schema"
)

// tableSource resolves table names to descriptors. Production servers use
// the pgxstore introspection cache.
type tableSource interface {
	Get(ctx context.Context, name string) (*schema.Table, error)
}

// pinger reports store reachability for the health endpoint.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the batch-write API.
type Server struct {
	writer *smartbatch.Writer
	handle smartbatch.Handle
	tables tableSource
	db     pinger
	cfg    *config.Config
	router *chi.Mux
	server *http.Server
}

// NewServer wires the write engine, the connection pool and the descriptor
// cache into a router.
func NewServer(cfg *config.Config, writer *smartbatch.Writer, pool *pgxpool.Pool) *Server {
	s := &Server{
		writer: writer,
		handle: pgxstore.PoolHandle(pool),
		tables: pgxstore.NewTableCache(pool, cfg.Writer.DescribeCacheTTL),
		db:     pool,
		cfg:    cfg,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/", s.handleDescribeTable)
			r.Get("/count", s.handleCount)
			r.Get("/rows/{key}", s.handleGetRow)

			r.Post("/insert", s.handleInsert)
			r.Post("/update", s.handleUpdate)
			r.Post("/upsert", s.handleUpsert)
			r.Post("/reset", s.handleReset)
		})
	})
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON encodes v as JSON and writes it to w.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
