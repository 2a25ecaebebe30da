package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skymux/skymux-go/internal/adapters"
	"github.com/skymux/skymux-go/internal/auth"
	"github.com/skymux/skymux-go/internal/config"
	"github.com/skymux/skymux-go/internal/provider"
	"github.com/skymux/skymux-go/internal/session"
	"github.com/skymux/skymux-go/internal/store"
	"github.com/skymux/skymux-go/internal/task"
)

// app bundles the wired service graph every command operates on:
// registry, account store, auth flow, task pool, session manager.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *provider.Registry
	accounts *store.Store
	flow     *auth.Flow
	pool     *task.Pool
	sessions *session.Manager
}

// openApp constructs the service graph from the resolved config.
// Callers must Close() it.
func openApp(ctx context.Context) (*app, error) {
	logger := buildLogger()

	dbPath := resolvedCfg.Storage.DBPath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	accounts, err := store.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening account store: %w", err)
	}

	registry := provider.NewRegistry(logger)
	registry.LoadConfigured(adapters.Builtin(), resolvedCfg.Configured())

	flow := auth.NewFlow(registry, accounts, logger)
	pool := task.NewPool(resolvedCfg.Transfers.Workers, logger)

	return &app{
		cfg:      resolvedCfg,
		logger:   logger,
		registry: registry,
		accounts: accounts,
		flow:     flow,
		pool:     pool,
		sessions: session.NewManager(registry, accounts, flow, pool, logger),
	}, nil
}

// Close releases the pool and the store. Safe to call once.
func (a *app) Close() {
	a.pool.Close()

	if err := a.accounts.Close(); err != nil {
		a.logger.Warn("closing account store", slog.String("error", err.Error()))
	}
}

// session opens a session for the --account flag, failing with a
// usage hint when the flag is missing.
func (a *app) session(ctx context.Context) (*session.Session, error) {
	if flagAccount == "" {
		return nil, fmt.Errorf("--account is required (run 'skymux accounts' to list)")
	}

	return a.sessions.Open(ctx, flagAccount)
}
