package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"archival-hq/keeper/pkg/telemetry/health"
	"archival-hq/keeper/pkg/telemetry/tracing"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config configures the operations server.
type Config struct {
	// ListenAddress is the TCP address to bind, e.g. "127.0.0.1:9464".
	ListenAddress string

	// MetricsPath is where Metrics is mounted. Empty disables it.
	MetricsPath string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Version information served on /version.
	Version   string
	Commit    string
	BuildTime string

	// Tracer wraps requests in server spans. Optional.
	Tracer *tracing.Tracer
}

// Server exposes health, readiness, version and Prometheus endpoints for a
// running engine.
type Server struct {
	cfg     Config
	checker *health.Checker
	metrics http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool

	logger *slog.Logger
}

// New creates a server. metrics may be nil.
func New(cfg Config, checker *health.Checker, metrics http.Handler) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if checker == nil {
		checker = health.New(0)
	}
	return &Server{
		cfg:     cfg,
		checker: checker,
		metrics: metrics,
		logger:  slog.Default().With("component", "server"),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	health.Register(mux, s.checker, s.cfg.Version, s.cfg.Commit, s.cfg.BuildTime)
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle(s.cfg.MetricsPath, s.metrics)
	}

	var handler http.Handler = mux
	handler = s.cfg.Tracer.HTTPMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Start binds the listen address and serves until ctx is done, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("operations server listening", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires. Calling it on a stopped server is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpServer
	s.mu.Unlock()

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("operations server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
