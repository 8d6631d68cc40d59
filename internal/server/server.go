// Package server provides process lifecycle management: the ops HTTP server,
// long-running background components and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function that shuts down a component gracefully.
type ShutdownFunc func(ctx context.Context) error

// RunFunc is a long-running component. It must return once ctx is cancelled.
type RunFunc func(ctx context.Context) error

type background struct {
	name string
	run  RunFunc
}

// Server wraps http.Server with background components and graceful shutdown.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []ShutdownFunc
	components      []background
	mu              sync.Mutex
}

// New creates a new Server instance.
func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With("component", "server"),
		shutdownFuncs:   make([]ShutdownFunc, 0),
	}
}

// Background registers a component that runs alongside the HTTP server, such
// as the bot poller or the scheduler. If it fails, the whole process shuts down.
func (s *Server) Background(name string, fn RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, background{name: name, run: fn})
}

// OnShutdown registers a function to be called during graceful shutdown.
// Shutdown functions are called in reverse order (LIFO) after the HTTP server
// and background components stop, so stores registered first close last.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownFuncs = append(s.shutdownFuncs, func(ctx context.Context) error {
		s.logger.Info("shutting down component", "name", name)
		if err := fn(ctx); err != nil {
			s.logger.Error("component shutdown error", "name", name, "error", err)
			return err
		}
		s.logger.Info("component stopped", "name", name)
		return nil
	})
}

// Run starts the server and background components and blocks until ctx is
// cancelled, SIGINT/SIGTERM arrives or a component fails.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	s.mu.Lock()
	components := append([]background(nil), s.components...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	componentErr := make(chan error, len(components))
	for _, c := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("component starting", "name", c.name)
			err := c.run(bgCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				componentErr <- fmt.Errorf("%s: %w", c.name, err)
				return
			}
			s.logger.Info("component finished", "name", c.name)
		}()
	}

	var runErr error
	select {
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	case err := <-componentErr:
		runErr = fmt.Errorf("component failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	if err := s.gracefulShutdown(cancelBg, &wg); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// gracefulShutdown stops the HTTP server, then background components, then
// the registered shutdown functions in reverse order.
func (s *Server) gracefulShutdown(cancelBg context.CancelFunc, wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Phase 1: Stop accepting new connections
	s.logger.Info("phase 1: stopping HTTP server", "timeout", s.shutdownTimeout)
	s.httpServer.SetKeepAlivesEnabled(false)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.logger.Info("HTTP server stopped")

	// Phase 2: Stop background components
	s.logger.Info("phase 2: stopping background components")
	cancelBg()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background components did not stop in time")
	}

	// Phase 3: Shutdown registered components in reverse order
	s.mu.Lock()
	funcs := s.shutdownFuncs
	s.mu.Unlock()
	s.logger.Info("phase 3: stopping registered components", "count", len(funcs))

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		s.logger.Error("shutdown completed with errors", "error_count", len(errs))
		return errs[0]
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
