// Package server exposes a point cache over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
)

const maxBodyBytes = 1 << 20

// Deps are the optional collaborators of a Server.
type Deps struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	RED    *observability.REDMetrics
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Server serves range reads of a service.
type Server struct {
	cfg     config.ServerConfig
	svc     *service.Service
	logger  *slog.Logger
	batch   *batchValidator
	handler http.Handler
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, svc *service.Service, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Tracer == nil {
		deps.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	validator, err := newBatchValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, svc: svc, logger: deps.Logger, batch: validator}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /range", s.handleRange)
	mux.HandleFunc("GET /gaps", s.handleGaps)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /batch", s.handleBatch)
	mux.HandleFunc("POST /snapshot", s.handleSnapshotSave)
	mux.HandleFunc("DELETE /cache", s.handleClear)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(svc.Ready))

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	s.handler = observability.HTTPMiddleware(deps.Tracer, deps.RED, mux)

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- httpServer.Serve(listener)
	}()

	s.logger.InfoContext(ctx, "server listening", "addr", listener.Addr().String())

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	err = <-serveErr
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	s.logger.InfoContext(ctx, "server stopped")

	return nil
}
