package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/favorites-app/internal/config"
	"github.com/ayush/favorites-app/internal/store"
)

// openPostgres migrates the schema and opens the credential store pool.
func openPostgres(ctx context.Context, cfg *config.Config, migrate bool) (*pgxpool.Pool, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if migrate {
		if err := store.Migrate(cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	poolCfg.ConnConfig.ConnectTimeout = cfg.DBTimeout
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return pool, nil
}

// openMongo connects lazily; operations fail after the configured timeout
// when the server cannot be selected.
func openMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(cfg.DBTimeout).
		SetServerSelectionTimeout(cfg.DBTimeout).
		SetTimeout(cfg.DBTimeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, nil
}
