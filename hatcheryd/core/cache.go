package core

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/hatchery-io/hatchery/internals/conf"
	"github.com/hatchery-io/hatchery/internals/env"
)

func InitCache(ctx context.Context, config *conf.Config) (*redis.Client, error) {
	addr := config.Cache.RedisAddr
	if override := env.Get().REDIS_ADDR; override != "" {
		addr = override
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
