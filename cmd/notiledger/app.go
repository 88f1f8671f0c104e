package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/config"
	"github.com/Veraticus/notiledger/internal/deposit"
	"github.com/Veraticus/notiledger/internal/engine"
	"github.com/Veraticus/notiledger/internal/metrics"
	"github.com/Veraticus/notiledger/internal/service"
	"github.com/Veraticus/notiledger/internal/storage"
)

// app bundles what most commands need: configuration, storage, the catalog
// and an engine wired to them.
type app struct {
	cfg      *config.PipelineConfig
	store    service.Storage
	provider *catalog.Provider
	metrics  *metrics.Metrics
	engine   *engine.Engine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadPipelineConfig()
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := catalog.NewProvider(cfg.CatalogOverridesFile)
	if err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	m := metrics.Default()
	provider.OnReload(func(_ *catalog.Snapshot, err error) { m.RecordCatalogReload(err) })

	ec := engine.DefaultConfig()
	ec.Metrics = m
	ec.DuplicateWindow = cfg.DuplicateWindow
	ec.DuplicateLookback = cfg.DuplicateLookback
	ec.DepositPolicy = deposit.Policy{MinSamples: cfg.DepositMinSamples}
	ec.AutoApplyMinUses = cfg.AutoApplyMinUses

	return &app{
		cfg:      cfg,
		store:    store,
		provider: provider,
		metrics:  m,
		engine:   engine.NewWithConfig(store, provider, ec),
	}, nil
}

func (a *app) Close() {
	closeStorage(a.store)
}

// openStorage opens the configured backend and brings its schema up to date.
func openStorage(ctx context.Context, cfg *config.PipelineConfig) (service.Storage, error) {
	var (
		store service.Storage
		err   error
	)
	switch cfg.Backend {
	case config.BackendFirestore:
		store, err = storage.OpenFirestore(ctx, cfg.FirestoreProject, storage.FirestoreAuth{
			CredentialsFile: cfg.FirestoreCredentials,
			ClientID:        cfg.FirestoreClientID,
			ClientSecret:    cfg.FirestoreSecret,
			RefreshToken:    cfg.FirestoreToken,
		})
	default:
		store, err = storage.NewSQLiteStorage(cfg.DatabasePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}

	if err := store.Migrate(ctx); err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func closeStorage(store service.Storage) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close storage", "error", err)
	}
}

// sqliteOnly returns the SQLite store behind a, for commands that only make
// sense on a local database file.
func (a *app) sqliteOnly(what string) (*storage.SQLiteStorage, error) {
	s, ok := a.store.(*storage.SQLiteStorage)
	if !ok {
		return nil, common.NewUserError(fmt.Sprintf("%s needs the sqlite backend", what), nil)
	}
	return s, nil
}

func usageError(msg string) error {
	return common.NewUserError(msg, nil)
}
