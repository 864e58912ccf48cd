// Command universed runs the universe control plane: an HTTP API that
// accepts cluster lifecycle operations and an engine that executes them
// against infrastructure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"universed/internal/commissioner"
	"universed/internal/commissioner/tasks"
	"universed/internal/config"
	"universed/internal/executors"
	"universed/internal/infrastructure"
	transport "universed/internal/transport/http"
	"universed/internal/universe"
	ws "universed/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "universed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	engineMetrics, err := commissioner.NewMetrics(otelProviders.Meter)
	if err != nil {
		return fmt.Errorf("register engine metrics: %w", err)
	}

	hub := ws.NewHub(logger)
	hub.Start()

	universeStore := universe.NewMemStore()
	taskStore := commissioner.NewMemTaskStore()

	// Local agents back the dev server; production deployments swap in
	// real provider and node-agent implementations here.
	nodeAgent := executors.NewFakeNodeAgent(logger)
	provider := executors.NewProviderClient(executors.NewFakeProviderAPI(), 10, 20, logger)
	dnsManager := executors.NewFakeDNSManager(cfg.DNS.Zone)
	dbClient := executors.NewFakeDBClient(cfg.Engine.Retry)

	deps := &commissioner.Deps{
		Universes:   universeStore,
		Tasks:       taskStore,
		NodeAgent:   nodeAgent,
		Provider:    provider,
		DNS:         dnsManager,
		DB:          dbClient,
		Retry:       cfg.Engine.Retry,
		Logger:      logger,
		Metrics:     engineMetrics,
		Broadcaster: commissioner.NewStatusBroadcaster(hub),
	}

	registry := commissioner.NewRegistry()
	tasks.RegisterAll(registry)

	engine := commissioner.New(cfg.Engine, registry, deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	router := transport.NewRouter(transport.RouterDeps{
		Engine:      engine,
		Universes:   universeStore,
		Hub:         hub,
		MetricsHTTP: otelProviders.PrometheusHTTP,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", server.Addr),
			slog.String("operations", fmt.Sprintf("%v", registry.Types())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	engine.Stop(shutdownCtx)
	hub.Stop()
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
	}

	// Give in-flight log writes a moment to drain.
	time.Sleep(100 * time.Millisecond)
	return nil
}
