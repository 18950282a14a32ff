// Package server provides the HTTP API for kioku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/ingest"
	"github.com/kiokusearch/kioku/internal/retrieve"
	"github.com/kiokusearch/kioku/internal/syncer"
)

// Server is the HTTP server for the kioku API.
type Server struct {
	pipeline *ingest.Pipeline
	engine   *retrieve.Engine
	syncer   *syncer.Manager
	index    *index.Index
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	pipeline *ingest.Pipeline,
	engine *retrieve.Engine,
	mgr *syncer.Manager,
	idx *index.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: pipeline,
		engine:   engine,
		syncer:   mgr,
		index:    idx,
		config:   cfg,
		logger:   logger,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/search", s.handleSearch)
	r.Delete("/api/v1/sources", s.handleDeleteSources)
	r.Get("/api/v1/records/{id}", s.handleGetRecord)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
