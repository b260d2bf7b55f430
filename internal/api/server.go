// Package api exposes the HTTP surface: per-session chat endpoints, the
// session registry, content schema and entry management, and the public
// content projection. All JSON endpoints answer with the
// {success, data?, error?} envelope.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nebulacms/nebula/internal/agent"
	"github.com/nebulacms/nebula/internal/cms"
	"github.com/nebulacms/nebula/internal/log"
	"github.com/nebulacms/nebula/internal/registry"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      log.Logger
	Manager     *agent.Manager       // Required
	Registry    *registry.Registry   // Required
	Repository  *cms.Repository      // Required
	Pool        *pgxpool.Pool        // Optional: nil skips the storage probe in /ready
	CORSOrigins []string             // Allowed origins for CORS
	TrustProxy  bool                 // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int                  // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("session manager is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if cfg.Repository == nil {
		return nil, errors.New("content repository is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{manager: cfg.Manager, logger: logger}
	sh := &sessionHandler{registry: cfg.Registry, manager: cfg.Manager, logger: logger}
	cmh := &cmsHandler{repo: cfg.Repository, logger: logger}

	mux := http.NewServeMux()

	// Per-session conversation endpoints.
	mux.HandleFunc("GET /api/chat/{sessionId}/messages", ch.messages)
	mux.HandleFunc("POST /api/chat/{sessionId}/chat", ch.send)
	mux.HandleFunc("DELETE /api/chat/{sessionId}/clear", ch.clear)
	mux.HandleFunc("POST /api/chat/{sessionId}/model", ch.setModel)

	// Session registry.
	mux.HandleFunc("GET /api/sessions", sh.list)
	mux.HandleFunc("POST /api/sessions", sh.create)
	mux.HandleFunc("PUT /api/sessions/{sessionId}/title", sh.rename)
	mux.HandleFunc("DELETE /api/sessions/{sessionId}", sh.delete)

	// Content management.
	mux.HandleFunc("GET /api/cms/collections", cmh.listCollections)
	mux.HandleFunc("POST /api/cms/collections", cmh.createCollection)
	mux.HandleFunc("GET /api/cms/entries/{collectionId}", cmh.listEntries)
	mux.HandleFunc("POST /api/cms/entries", cmh.createEntry)

	// Public read-only projection.
	mux.HandleFunc("GET /api/public/content/{slug}", cmh.publicContent)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes; CORS sits before RateLimit so preflight OPTIONS gets
	// proper headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes stay outside the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
