// Package server provides the HTTP API for docent.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/docent/internal/config"
	"github.com/hyperjump/docent/internal/search"
	"github.com/hyperjump/docent/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the docent API.
type Server struct {
	search  *search.Service
	catalog storage.Catalog
	model   string
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server

	oracle     Pinger
	oracleName string
}

// Pinger is a dependency /health can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer creates a server with the given dependencies. model is the
// embedding model version reported by /health.
func NewServer(
	svc *search.Service,
	catalog storage.Catalog,
	model string,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		search:  svc,
		catalog: catalog,
		model:   model,
		config:  cfg,
		logger:  logger,
	}
}

// SetOracle adds the ranking service to the health check when it is not the
// catalog store itself.
func (s *Server) SetOracle(name string, p Pinger) {
	s.oracleName = name
	s.oracle = p
}

// Handler returns the router with all middleware and routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		// Echo any origin so credentialed requests are allowed too.
		AllowOriginFunc:  func(*http.Request, string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/galleries", s.handleListGalleries)
	r.Get("/exhibitions", s.handleListExhibitions)
	r.Get("/exhibitions/{id}/artworks", s.handleListArtworks)
	r.Get("/artworks/{artwork_id}", s.handleGetArtwork)
	r.Post("/image-search", s.handleImageSearch)
	r.Post("/image-search/", s.handleImageSearch)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
