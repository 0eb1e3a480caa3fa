package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/clients/redis"
	"github.com/yungbote/cipheragg/internal/data/aggregates"
	"github.com/yungbote/cipheragg/internal/data/memstore"
	"github.com/yungbote/cipheragg/internal/db"
	"github.com/yungbote/cipheragg/internal/observability"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

var (
	newDatabaseService = db.NewService
	newRedisClient     = redis.NewClient
)

type StoreBootstrapErrorCode string

const (
	StoreBootstrapErrorInvalidDriver StoreBootstrapErrorCode = "invalid_driver"
	StoreBootstrapErrorConnectFailed StoreBootstrapErrorCode = "connect_failed"
	StoreBootstrapErrorMigrateFailed StoreBootstrapErrorCode = "migrate_failed"
)

type StoreBootstrapError struct {
	Code   StoreBootstrapErrorCode
	Driver string
	Cause  error
}

func (e *StoreBootstrapError) Error() string {
	if e == nil {
		return "aggregate store bootstrap failed"
	}
	return fmt.Sprintf("aggregate store bootstrap failed (code=%s driver=%q): %v", e.Code, e.Driver, e.Cause)
}

func (e *StoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// storeHandle is everything the app keeps about the opened aggregate store.
type storeHandle struct {
	store accumulation.Store
	// sql is set for the sqlite and postgres drivers so the ledger can share it.
	sql   *db.Service
	redis *goredis.Client
	ping  func(ctx context.Context) error
	close func() error
}

func openStore(log *logger.Logger, cfg Config, metrics *observability.Metrics) (*storeHandle, error) {
	driver := cfg.Storage.Driver
	log.Info("Selecting aggregate store", "driver", driver)

	switch driver {
	case StorageMemory:
		return &storeHandle{
			store: memstore.New(),
			ping:  func(context.Context) error { return nil },
			close: func() error { return nil },
		}, nil

	case StorageSQLite, StoragePostgres:
		svc, err := openDatabase(log, cfg, driver)
		if err != nil {
			return nil, err
		}
		if metrics != nil {
			if sqlDB, err := svc.DB().DB(); err == nil {
				if err := metrics.RegisterDB(sqlDB, driver); err != nil {
					log.Warn("database stats collector not registered", "error", err)
				}
			}
		}
		store := aggregates.NewEncryptedTotalStore(aggregates.BaseDeps{
			DB:    svc.DB(),
			Log:   log,
			Hooks: aggregates.NewObservabilityHooks(metrics),
		})
		return &storeHandle{
			store: store,
			sql:   svc,
			ping: func(ctx context.Context) error {
				sqlDB, err := svc.DB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			close: svc.Close,
		}, nil

	case StorageRedis:
		rdb, err := newRedisClient(redis.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPass,
			DB:       cfg.Storage.RedisDB,
			Prefix:   cfg.Storage.RedisPrefix,
		}, log)
		if err != nil {
			return nil, bootstrapFailed(log, driver, StoreBootstrapErrorConnectFailed, err)
		}
		return &storeHandle{
			store: redis.NewAggregateStore(rdb, cfg.Storage.RedisPrefix, log),
			redis: rdb,
			ping: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			close: rdb.Close,
		}, nil

	default:
		return nil, bootstrapFailed(log, driver, StoreBootstrapErrorInvalidDriver, fmt.Errorf("unsupported storage driver %q", driver))
	}
}

// openDatabase opens and migrates a gorm database for driver.
func openDatabase(log *logger.Logger, cfg Config, driver string) (*db.Service, error) {
	dbCfg := db.Config{
		Driver:      driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}
	if driver == StorageSQLite {
		// SQLite has a single writer; callers queue on the pool instead of the file lock.
		dbCfg.MaxOpenConns = 1
	}
	svc, err := newDatabaseService(dbCfg, log)
	if err != nil {
		return nil, bootstrapFailed(log, driver, StoreBootstrapErrorConnectFailed, err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, bootstrapFailed(log, driver, StoreBootstrapErrorMigrateFailed, err)
	}
	return svc, nil
}

func bootstrapFailed(log *logger.Logger, driver string, code StoreBootstrapErrorCode, cause error) error {
	err := &StoreBootstrapError{Code: code, Driver: driver, Cause: cause}
	log.Error("Aggregate store bootstrap failed", "driver", driver, "error_code", code, "error", cause)
	return err
}
