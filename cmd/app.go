package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/catalog"
	"github.com/JakeFAU/engine-proxy/internal/clock/system"
	"github.com/JakeFAU/engine-proxy/internal/config"
	"github.com/JakeFAU/engine-proxy/internal/engine"
	"github.com/JakeFAU/engine-proxy/internal/logging"
	"github.com/JakeFAU/engine-proxy/internal/storage/memory"
	"github.com/JakeFAU/engine-proxy/internal/storage/postgres"
	"github.com/JakeFAU/engine-proxy/internal/storage/sqlite"
)

// app bundles the services shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	store   engine.Store
	catalog *catalog.Service
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	store, err := openStore(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		catalog: catalog.NewService(store, system.New(), logger.Named("catalog")),
	}, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (engine.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory catalog; changes are lost on restart")
		return memory.NewEngineStore(), nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.NewEngineStore(ctx, postgres.Config{
			DSN:             cfg.DSN,
			Table:           cfg.Table,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("postgres catalog ready", zap.String("table", cfg.Table))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// Close releases the store and flushes logs.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
