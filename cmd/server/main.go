// Package main is the entry point for the Coherence simulation daemon.
// It runs the full client-side simulation stack server-side: quantum
// two-state registry, decoherence environment, entanglement, a spiking
// neural network and a wavefunction field, exposed over HTTP for the
// rendering host.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - One engine context owns all module state, no ambient globals
// - Cross-module coupling via entity ids and emitted events only
// - HTTP handlers for API endpoints, SSE and websocket for streams
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astatos/coherence/internal/config"
	"github.com/astatos/coherence/internal/engine"
	"github.com/astatos/coherence/internal/events"
	"github.com/astatos/coherence/internal/server"
	"github.com/astatos/coherence/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger with config level
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Coherence")

	// Event bus first: every module subscribes to lifecycle events
	// during construction.
	bus := events.NewBus()
	eventManager := events.NewManager(bus, log)

	// Engine owns the full simulation context: registry, decoherence
	// monitor, entanglement manager, neural network, wavefunction
	// solver and the slow-path scheduler.
	eng := engine.New(cfg, eventManager, log)
	if err := eng.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start engine")
	}

	// HTTP server
	srv := server.New(server.Config{
		Log:     log,
		Config:  cfg,
		Engine:  eng,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the simulation clock before the HTTP surface so no handler
	// observes a half-applied tick.
	eng.Stop()

	// Graceful shutdown with a bounded drain window for in-flight
	// requests and open streams.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
