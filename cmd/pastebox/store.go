package main

import (
	"context"
	"fmt"
	"log/slog"

	"pastebox/internal/config"
	"pastebox/internal/storage"
	"pastebox/internal/storage/boltstore"
	"pastebox/internal/storage/dynamostore"
	"pastebox/internal/storage/memstore"
	"pastebox/internal/storage/mongostore"
	"pastebox/internal/storage/redisstore"
	"pastebox/internal/storage/sqlstore"
)

// openStore builds the backend named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Store {
	case config.StoreMemory:
		store = memstore.New()
	case config.StoreBolt:
		store, err = boltstore.Open(cfg.DSN)
	case config.StoreSQLite, config.StorePostgres, config.StoreLibSQL:
		var sqlStore *sqlstore.Store
		sqlStore, err = sqlstore.Open(ctx, cfg.DSN, sqlstore.Options{Strategy: cfg.Increment})
		if err == nil && sqlStore.Dialect() != cfg.Store {
			_ = sqlStore.Close()
			return nil, fmt.Errorf("dsn selects the %s dialect, not %s", sqlStore.Dialect(), cfg.Store)
		}
		store = sqlStore
	case config.StoreMongo:
		store, err = mongostore.Open(ctx, cfg.DSN, cfg.MongoDatabase)
	case config.StoreDynamoDB:
		store, err = dynamostore.Open(ctx, dynamostore.Options{
			Table:    cfg.DynamoTable,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.DynamoEndpoint,
		})
	case config.StoreRedis:
		store, err = redisstore.Open(ctx, cfg.DSN, redisstore.DefaultPrefix)
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	strategy := storage.StrategyAuto
	if s, ok := store.(storage.Strategist); ok {
		strategy = s.IncrementStrategy()
	}
	if cfg.Increment != storage.StrategyAuto && cfg.Increment != strategy {
		_ = store.Close()
		return nil, fmt.Errorf("store %s does not support the %s increment strategy", cfg.Store, cfg.Increment)
	}
	logger.Info("store ready", "store", cfg.Store, "increment", strategy)
	return store, nil
}
