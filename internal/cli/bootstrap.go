package cli

import (
	"database/sql"
	"fmt"

	"github.com/dynrelay/dynrelay/internal/config"
	"github.com/dynrelay/dynrelay/internal/connector"
	"github.com/dynrelay/dynrelay/internal/dynatrace"
	"github.com/dynrelay/dynrelay/internal/infra/storage"
	"github.com/dynrelay/dynrelay/internal/infra/storage/migrations"
	"github.com/dynrelay/dynrelay/internal/observability"
	"github.com/dynrelay/dynrelay/internal/repository"
	"github.com/dynrelay/dynrelay/internal/service"
	"go.uber.org/zap"
)

// app holds everything a subcommand needs after bootstrap.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	sqlDB  *sql.DB
	engine *service.Engine
	client *dynatrace.Client
}

func (a *app) Close() {
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
	if a.logger != nil {
		a.logger.Sync() //nolint:errcheck
	}
}

// bootstrap loads configuration and builds the full dependency graph. Every
// subcommand that touches the store or the API goes through here so they all
// run the same migrations and validation.
func bootstrap(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.Source())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	client, err := dynatrace.NewClient(cfg.Dynatrace, logger)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to build API client: %w", err)
	}

	connectors := make([]*connector.Connector, 0, len(cfg.Connectors))
	for _, connCfg := range cfg.Connectors {
		conn, err := connector.New(connCfg, logger)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to build connector %q: %w", connCfg.Name, err)
		}
		connectors = append(connectors, conn)
	}

	engine, err := service.NewEngine(
		client,
		repository.NewGormTrackingRepo(db),
		repository.NewGormHistoryRepo(db),
		connectors,
		cfg.Polling.Interval(),
		logger,
	)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to build engine: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		sqlDB:  sqlDB,
		engine: engine,
		client: client,
	}, nil
}
