// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelsec/vulnsync/internal/api"
	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/database"
	"github.com/kestrelsec/vulnsync/internal/inventory"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/supervisor"
	"github.com/kestrelsec/vulnsync/internal/supervisor/services"
	"github.com/kestrelsec/vulnsync/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("nvd_url", cfg.NVD.BaseURL).
		Dur("sync_interval", cfg.Sync.Interval).
		Int64("lock_key", cfg.Sync.LockKey).
		Msg("Starting vulnsync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to run migrations")
		}
		logging.Info().Msg("Database schema migrated")
	}

	// The NVD client sits behind a circuit breaker so a degraded remote API
	// fails fast instead of stacking up slow requests.
	nvdClient := sync.NewCircuitBreakerClient(&cfg.NVD)
	fetcher := sync.NewFetcher(nvdClient, &cfg.NVD)
	lock := db.NewLeaderLock(cfg.Sync.LockKey)
	manager := sync.NewManager(cfg, db, lock, fetcher)

	// Without a token the alert inventory endpoint answers 503.
	var alertEngine api.AlertInventory
	if cfg.GitHub.Token != "" {
		alertEngine = inventory.NewEngine(&cfg.GitHub, inventory.NewGraphQLClient(&cfg.GitHub))
	}

	handler := api.NewHandler(db, manager, alertEngine)
	router := api.NewRouter(handler, api.NewMiddleware(nil))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Bridge zerolog to slog for suture's event hook.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewSyncService(manager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
