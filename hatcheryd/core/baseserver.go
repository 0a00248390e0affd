package core

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hatchery-io/hatchery/internals/assert"
	"github.com/hatchery-io/hatchery/internals/conf"
	"github.com/hatchery-io/hatchery/internals/coordinator"
	"github.com/hatchery-io/hatchery/internals/dispatch"
	"github.com/hatchery-io/hatchery/internals/env"
	"github.com/hatchery-io/hatchery/internals/events"
	"github.com/hatchery-io/hatchery/internals/statemachine"
	"github.com/hatchery-io/hatchery/internals/taskcache"
	"github.com/hatchery-io/hatchery/internals/taskservice"
	"github.com/hatchery-io/hatchery/internals/taskstore"
	"github.com/hatchery-io/hatchery/internals/triggers"
	"github.com/hatchery-io/hatchery/internals/workq"
)

type BaseServer struct {
	Config      *conf.Config
	Env         *env.EnvStruct
	Logger      *slog.Logger
	LogFile     *os.File
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Store       *taskstore.Store
	Cache       *taskcache.Cache
	Machine     *statemachine.Machine
	Registry    *triggers.Registry
	Tasks       *taskservice.Service
	Coordinator *coordinator.Coordinator
	Dispatcher  *dispatch.Dispatcher
	Queue       *workq.Queue[Jobs]
	Consumer    *workq.Consumer[Jobs]
}

func New(ctx context.Context) *BaseServer {
	environment := env.Get()
	config := conf.GetConfig()
	if config.Server.DataDir != "" {
		config.Server.DataDir = filepath.Clean(config.Server.DataDir)
	}

	logger, logFile := InitLogger(config)

	pool, err := InitDB(ctx, config)
	assert.AssertNil(err, "[CORE] Failed to connect to postgres")
	rdb, err := InitCache(ctx, config)
	assert.AssertNil(err, "[CORE] Failed to connect to redis")

	store := taskstore.New(pool, logger)
	cache := taskcache.New(rdb, logger)
	machine := statemachine.New(store, cache, logger)
	registry := triggers.NewRegistry(triggers.NewPGStore(pool), cache, logger)

	base := &BaseServer{
		Config:   config,
		Env:      environment,
		Logger:   logger,
		LogFile:  logFile,
		Pool:     pool,
		Redis:    rdb,
		Store:    store,
		Cache:    cache,
		Machine:  machine,
		Registry: registry,
	}

	backoff := workq.BackoffExponential(workq.BackoffConfig{
		Base: parseDuration(config.Execute.BackoffBase, time.Second),
		Max:  parseDuration(config.Execute.BackoffMax, 2*time.Minute),
	})

	queue, err := NewQueue(base, backoff, config.Execute.MaxRetries)
	assert.AssertNil(err, "[CORE] Failed to initialize queue")
	base.Queue = queue
	base.Consumer = workq.NewConsumer(queue, workq.ConsumerOptions{Workers: config.Execute.Workers})

	scheduler := NewStepScheduler(queue, backoff)
	publisher := &events.LogPublisher{Logger: logger}
	executor := NewHTTPExecutor(config.Execute.AgentURL)

	base.Coordinator = coordinator.New(store, cache, machine, executor, scheduler, publisher, coordinator.Config{
		MaxRetries: config.Execute.MaxRetries,
	}, logger)
	base.Dispatcher = dispatch.New(registry, store, scheduler, logger)
	base.Tasks = taskservice.New(store, cache, machine, logger)

	loaded, err := registry.LoadAll(ctx)
	if err != nil {
		logger.Warn("Failed to preload trigger configs", slog.String("error", err.Error()))
	} else {
		logger.Info("Trigger configs loaded", slog.Int("count", loaded))
	}

	return base
}

func (b *BaseServer) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.LogFile != nil {
		b.LogFile.Close()
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
