// Package bootstrap wires the store, the matching engine and the allocation
// service from a Config. It is shared by the HTTP server and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"housing-allocation-backend/internal/config"
	"housing-allocation-backend/internal/lock"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/allocation"
	"housing-allocation-backend/internal/services/matching"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Store   repository.Store
	Engine  *matching.Engine
	Service *allocation.Service

	db    *gorm.DB
	redis *redis.Client
}

// New opens the configured store and lock backend. With the postgres store the
// schema is migrated before New returns.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using the in-memory store, data is lost on exit")
		app.Store = repository.NewMemoryStore()
	default:
		db, err := config.OpenDB(cfg)
		if err != nil {
			return nil, err
		}
		app.db = db
		gs := repository.NewGormStore(db)
		if err := gs.Migrate(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
		app.Store = gs
	}

	rdb, err := config.OpenRedis(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	var locker lock.Locker
	if rdb != nil {
		app.redis = rdb
		locker = lock.NewRedisLocker(rdb)
	} else {
		logger.Info("REDIS_ADDR not set, matching runs are serialised in process only")
		locker = lock.NewLocalLocker()
	}

	app.Engine = matching.NewEngine(app.Store, matching.NewScorer(matching.DefaultScorerConfig()), logger)
	app.Service = allocation.NewService(app.Store, app.Engine, locker, logger, cfg.MatchingLockTTL)
	return app, nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("closing redis")
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.WithError(err).Warn("closing database")
			}
		}
	}
}
