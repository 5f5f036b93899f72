// Package server exposes the task service over a JSON HTTP API and streams
// events to WebSocket clients.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
)

const (
	DefaultAPIPrefix     = "/api/v1"
	DefaultWebSocketPath = "/ws"
	Version              = "0.1.0"
)

type Server struct {
	svc    *service.Service
	reqs   *requirements.Gateway
	hub    *events.Hub
	logger *slog.Logger

	prefix  string
	wsPath  string
	port    int
	origins map[string]struct{}

	// wsWriteTimeout bounds a single frame write to a WebSocket client.
	wsWriteTimeout time.Duration

	mu     sync.Mutex
	server *http.Server
}

type Option func(*Server)

func WithAPIPrefix(p string) Option {
	return func(s *Server) { s.prefix = p }
}

func WithWebSocketPath(p string) Option {
	return func(s *Server) { s.wsPath = p }
}

// WithAllowedOrigins restricts CORS and WebSocket origins. No origins means
// any origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.origins[o] = struct{}{}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPort is reported by /health.
func WithPort(port int) Option {
	return func(s *Server) { s.port = port }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.wsWriteTimeout = d
		}
	}
}

// NewServer wires the API. reqs may be nil, in which case the requirement
// routes answer 502.
func NewServer(svc *service.Service, reqs *requirements.Gateway, hub *events.Hub, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		reqs:           reqs,
		hub:            hub,
		logger:         slog.Default(),
		prefix:         DefaultAPIPrefix,
		wsPath:         DefaultWebSocketPath,
		origins:        make(map[string]struct{}),
		wsWriteTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.corsMiddleware(s.registerRoutes()))
}

// Start blocks serving addr until Shutdown, which makes it return
// http.ErrServerClosed.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", addr, "api_prefix", s.prefix, "websocket_path", s.wsPath)
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
