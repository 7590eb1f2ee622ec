// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/fimum/internal/cloud"
	"github.com/jeranaias/fimum/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address for the gateway.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize is the default request body limit (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// UPSTREAM
// ============================================================================

// Upstream is the completion provider used by the gateway.
// *cloud.OpenRouterClient satisfies it.
type Upstream interface {
	OpenStream(ctx context.Context, model string, messages []cloud.ChatMessage) (io.ReadCloser, error)
	Complete(ctx context.Context, model string, messages []cloud.ChatMessage) (*cloud.Completion, error)
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the completion gateway. It holds no per-request state.
type Server struct {
	addr   string
	router *http.ServeMux
	server *http.Server

	upstream     Upstream
	registry     *model.Registry
	cors         *CORSConfig
	limiter      *RateLimiter
	maxBodyBytes int64

	mu sync.RWMutex
}

// NewServer creates a gateway listening on addr and calling upstream.
// If addr is empty, DefaultAddr is used.
func NewServer(addr string, upstream Upstream) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:         addr,
		router:       http.NewServeMux(),
		upstream:     upstream,
		registry:     model.DefaultRegistry(),
		cors:         DefaultCORSConfig(),
		maxBodyBytes: MaxRequestBodySize,
	}

	s.setupRoutes()
	return s
}

// WithRegistry replaces the mode registry.
func (s *Server) WithRegistry(r *model.Registry) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r != nil {
		s.registry = r
	}
	return s
}

// WithCORS sets the CORS configuration. A nil config disables CORS headers.
func (s *Server) WithCORS(config *CORSConfig) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cors = config
	return s
}

// WithRateLimiter enables per-IP request limiting. Nil disables it.
func (s *Server) WithRateLimiter(limiter *RateLimiter) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter = limiter
	return s
}

// WithMaxBodyBytes sets the request body limit.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("GET /api/modes", s.handleModes)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	cors := s.cors
	limiter := s.limiter
	s.mu.RUnlock()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
	}
	if cors != nil {
		middlewares = append(middlewares, CORSMiddleware(cors))
	}
	if limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(limiter))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// MODES HANDLER
// ============================================================================

// ModesResponse is the body of GET /api/modes.
type ModesResponse struct {
	Default string              `json:"default"`
	Modes   []model.ModelConfig `json:"modes"`
}

// handleModes handles GET /api/modes.
func (s *Server) handleModes(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	registry := s.registry
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, ModesResponse{
		Default: string(model.DefaultMode),
		Modes:   registry.Modes(),
	})
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Upstream string `json:"upstream"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:   "ok",
		Version:  Version,
		Upstream: "configured",
	}

	if c, ok := s.upstream.(configurable); ok && !c.IsConfigured() {
		health.Upstream = "not_configured"
		health.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: streamed turns are bounded by the request context
		IdleTimeout: 120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	log.Printf("SERVER_START | addr=%s version=%s", s.addr, Version)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_WRITE_ERROR | error=%v", err)
	}
}

// ErrorResponse is the JSON error body returned by the gateway.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// generateResponseID generates a unique response ID.
func generateResponseID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return "chatcmpl-" + hex.EncodeToString(b)
}
