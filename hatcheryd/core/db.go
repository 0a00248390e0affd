package core

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hatchery-io/hatchery/internals/conf"
	"github.com/hatchery-io/hatchery/internals/env"
)

func InitDB(ctx context.Context, config *conf.Config) (*pgxpool.Pool, error) {
	dsn := config.Store.DatabaseURL
	if override := env.Get().DATABASE_URL; override != "" {
		dsn = override
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
