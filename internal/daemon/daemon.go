// Package daemon provides the core daemon bootstrapping and lifecycle
// management for the Frame Picker service.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Config holds daemon configuration.
type Config struct {
	// Version is the build version
	Version string

	// ListenAddr is the HTTP server listen address
	ListenAddr string

	// Server timeouts
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration
}

// DefaultConfig returns server settings suited to long uploads: the
// write timeout must cover processing-status downloads, and the read
// timeout must cover a full video upload on a slow link.
func DefaultConfig(version, listenAddr string) Config {
	return Config{
		Version:         version,
		ListenAddr:      listenAddr,
		ReadTimeout:     10 * time.Minute,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Stopper is anything that must be stopped during shutdown, after the
// HTTP server has drained. The background worker and session store
// both satisfy it.
type Stopper interface {
	Stop(ctx context.Context) error
}

// StopFunc adapts a plain function to Stopper.
type StopFunc func(ctx context.Context) error

func (f StopFunc) Stop(ctx context.Context) error { return f(ctx) }

// Daemon represents a running Frame Picker service instance.
type Daemon struct {
	config   Config
	server   *http.Server
	logger   zerolog.Logger
	stoppers []Stopper
}

// New creates a new daemon instance. Stoppers are stopped in order
// during shutdown, after in-flight HTTP requests have drained.
func New(cfg Config, logger zerolog.Logger, stoppers ...Stopper) *Daemon {
	return &Daemon{
		config:   cfg,
		logger:   logger,
		stoppers: stoppers,
	}
}

// Start runs the HTTP server until ctx is cancelled or the server
// fails, then performs a graceful shutdown.
func (d *Daemon) Start(ctx context.Context, handler http.Handler) error {
	d.logger.Info().
		Str("version", d.config.Version).
		Str("listen", d.config.ListenAddr).
		Msg("starting frame-picker daemon")

	d.server = &http.Server{
		Addr:           d.config.ListenAddr,
		Handler:        handler,
		ReadTimeout:    d.config.ReadTimeout,
		WriteTimeout:   d.config.WriteTimeout,
		IdleTimeout:    d.config.IdleTimeout,
		MaxHeaderBytes: d.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		d.logger.Info().Msgf("HTTP server listening on %s", d.config.ListenAddr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return d.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the daemon: drain HTTP first so no
// new jobs arrive, then stop the workers and stores.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.logger.Info().Msg("shutting down daemon")

	shutdownCtx, cancel := context.WithTimeout(ctx, d.config.ShutdownTimeout)
	defer cancel()

	if d.server != nil {
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	for _, s := range d.stoppers {
		if err := s.Stop(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("component shutdown error")
		}
	}

	d.logger.Info().Msg("daemon stopped")
	return nil
}

// WaitForShutdown waits for interrupt/termination signals.
func WaitForShutdown() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
