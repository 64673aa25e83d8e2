// Package server exposes the batch pipeline over HTTP and WebSocket:
// a JSON API for starting runs and fetching results, and a one-way
// event stream for progress.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mazeforge/mazeforge/internal/archive"
	"github.com/mazeforge/mazeforge/internal/batch"
	"github.com/mazeforge/mazeforge/internal/catalog"
	"github.com/mazeforge/mazeforge/internal/config"
	"github.com/mazeforge/mazeforge/internal/engine"
	"github.com/mazeforge/mazeforge/internal/logger"
	"github.com/mazeforge/mazeforge/internal/store"
)

type Server struct {
	address      string
	catalog      *catalog.Catalog
	runner       *batch.Runner
	packager     *archive.Packager
	store        *store.Store
	serverConfig *config.ServerConfig
	connLimiter  *ConnLimiter
	authLimiter  *AuthRateLimiter
	hub          *Hub
	httpServer   *http.Server
	shutdownOnce sync.Once
	StartTime    time.Time

	mu   sync.RWMutex
	runs map[string]*runEntry
}

func NewServer(address string, cat *catalog.Catalog, factory engine.Factory) *Server {
	return &Server{
		address:   address,
		catalog:   cat,
		runner:    batch.NewRunner(factory),
		packager:  &archive.Packager{},
		hub:       newHub(),
		runs:      make(map[string]*runEntry),
		StartTime: time.Now(),
	}
}

// SetStore sets the settings and run-history store. Without one the
// server still generates; history and last-used settings are just not
// persisted.
func (s *Server) SetStore(st *store.Store) {
	s.store = st
}

// SetServerConfig sets the server configuration
func (s *Server) SetServerConfig(cfg *config.ServerConfig) {
	s.serverConfig = cfg
	// Initialize connection limiter with the new config
	s.connLimiter = NewConnLimiter(cfg.Connections)
	// Initialize auth rate limiter
	s.authLimiter = NewAuthRateLimiter(cfg.RateLimit)
	s.packager = &archive.Packager{Disabled: cfg.Archive.Disabled}
}

// GetServerConfig returns the server configuration
func (s *Server) GetServerConfig() *config.ServerConfig {
	if s.serverConfig == nil {
		return config.DefaultConfig()
	}
	return s.serverConfig
}

// Handler builds the route table. The API routes sit behind basic auth
// when a password hash is configured; the WebSocket endpoint is guarded
// by the origin policy and connection limits instead.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/catalog", s.handleCatalog)
	api.HandleFunc("GET /api/settings", s.handleSettings)
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("POST /api/batch", s.handleBatchStart)
	api.HandleFunc("GET /api/batch/{id}", s.handleBatchStatus)
	api.HandleFunc("GET /api/batch/{id}/archive", s.handleBatchArchive)
	api.HandleFunc("GET /api/batch/{id}/files/{name}", s.handleBatchFile)
	api.HandleFunc("GET /api/runs", s.handleRuns)

	root := http.NewServeMux()
	root.Handle("/api/", s.requireAuth(api))
	root.HandleFunc("/ws", s.handleWebSocketUpgrade)
	return root
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("HTTP server listening", "address", s.address)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				logger.Error("HTTP server shutdown failed", "error", err)
			}
		}
		s.hub.closeAll()
		if s.authLimiter != nil {
			s.authLimiter.Stop()
		}
		logger.Info("Server stopped")
	})
}

// getRealIP extracts the real client IP from an HTTP request.
// It checks X-Forwarded-For header first (for reverse proxy setups),
// then falls back to the direct remote address.
func getRealIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by reverse proxies like nginx)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2"
		// The first one is the original client
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			clientIP := strings.TrimSpace(ips[0])
			if clientIP != "" {
				return clientIP
			}
		}
	}

	// Check X-Real-IP header (alternative header used by some proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to direct remote address
	return extractIP(r.RemoteAddr)
}
