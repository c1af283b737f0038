// Package app is the composition root; bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"

	"credit-core.io/creditcore/internal/api/handlers"
	"credit-core.io/creditcore/internal/bridge"
	"credit-core.io/creditcore/internal/config"
	"credit-core.io/creditcore/internal/infrastructure"
	"credit-core.io/creditcore/internal/jobs"
	"credit-core.io/creditcore/internal/lock"
	"credit-core.io/creditcore/internal/pkg/breaker"
	"credit-core.io/creditcore/internal/pkg/crypto"
	"credit-core.io/creditcore/internal/pkg/metrics"
	"credit-core.io/creditcore/internal/pkg/worker"
	"credit-core.io/creditcore/internal/provider"
	"credit-core.io/creditcore/internal/pubsub"
	"credit-core.io/creditcore/internal/repository"
	"credit-core.io/creditcore/internal/strategy"
	"credit-core.io/creditcore/internal/ws"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Redis   *redis.Client
	Pools   *worker.Pools
	Bridge  *bridge.Bridge
	Hub     *ws.Hub
	Metrics *metrics.Metrics

	subscriber *pubsub.Subscriber
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	m := metrics.New()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	redisClient, err := infrastructure.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	cipher, err := crypto.NewCipher([]byte(cfg.Security.EncryptionKey))
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init PII cipher: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		BroadcastPoolSize: cfg.Worker.BroadcastPoolSize,
	})
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	repos := repository.New(db.Pool, cipher)
	locks := lock.NewService(redisClient, lock.Options{
		TTL:           cfg.Lock.TTL,
		AcquireBudget: cfg.Lock.AcquireBudget,
		RetryInterval: cfg.Lock.RetryInterval,
	})
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}, m)
	gateway := provider.NewGateway(breakers, m, cfg.Breaker.ProviderTimeout)
	providers := provider.NewRegistry()

	rules, err := strategy.LoadRules(cfg.Strategy.RulesFile)
	if err != nil {
		db.Close()
		_ = redisClient.Close()
		pools.Shutdown()
		return nil, fmt.Errorf("load country rules: %w", err)
	}
	strategies := strategy.NewRegistry(rules)

	publisher := pubsub.NewPublisher(redisClient, cfg.Redis.Channel, m)
	hub := ws.NewHub(m)
	subscriber := pubsub.NewSubscriber(redisClient, cfg.Redis.Channel, hub.Broadcast)

	// Register the queue workers and the periodic maintenance jobs.
	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewProcessApplicationWorker(
		repos, locks, strategies, providers, gateway, publisher, m,
		cfg.River.TaskTimeout, cfg.River.MaxAttempts,
	))
	river.AddWorker(workers, jobs.NewPartitionAssuranceWorker(
		db.Pool, cfg.Maintenance.PartitionMonthsAhead, cfg.Maintenance.PartitionThreshold,
	))
	river.AddWorker(workers, jobs.NewWebhookCleanupWorker(repos))
	river.AddWorker(workers, jobs.NewDLQRetryWorker(repos))
	river.AddWorker(workers, jobs.NewOrphanSweepWorker(repos, cfg.River.TaskTimeout))
	river.AddWorker(workers, jobs.NewStalePendingCancelWorker(repos, cfg.Maintenance.StalePendingTTL))

	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		db.Close()
		_ = redisClient.Close()
		pools.Shutdown()
		return nil, fmt.Errorf("init river client: %w", err)
	}
	registerPeriodicJobs(db.RiverClient, cfg)

	queueBridge := bridge.New(db.Pool, db.RiverClient, repos, m, cfg.Bridge.Interval, cfg.Bridge.BatchSize)

	server := handlers.NewServer(handlers.Config{
		Apps:            repos.Applications,
		Webhooks:        repos.WebhookEvents,
		Audits:          repos.AuditLogs,
		FailedJobs:      repos.FailedJobs,
		PendingJobs:     repos.PendingJobs,
		Strategies:      strategies,
		Publisher:       publisher,
		Hub:             hub,
		Pools:           pools,
		WebhookSecret:   []byte(cfg.Security.WebhookSecret),
		WebhookMaxBytes: 1 << 20,
		WSOptions: ws.Options{
			IdleTimeout:    cfg.WebSocket.IdleTimeout,
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			SendBufferSize: cfg.WebSocket.SendBufferSize,
		},
	})

	return &Application{
		Config:     cfg,
		Router:     newRouter(cfg, server, m),
		DB:         db,
		Redis:      redisClient,
		Pools:      pools,
		Bridge:     queueBridge,
		Hub:        hub,
		Metrics:    m,
		subscriber: subscriber,
	}, nil
}

// registerPeriodicJobs schedules the maintenance cadence: partitions and
// webhook TTL daily, DLQ retry hourly, orphan sweep every 5 minutes.
func registerPeriodicJobs(client *river.Client[pgx.Tx], cfg *config.Config) {
	periodic := client.PeriodicJobs()

	periodic.Add(river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) { return jobs.PartitionAssuranceArgs{}, nil },
		&river.PeriodicJobOpts{RunOnStart: true},
	))
	periodic.Add(river.NewPeriodicJob(
		river.PeriodicInterval(24*time.Hour),
		func() (river.JobArgs, *river.InsertOpts) { return jobs.WebhookCleanupArgs{}, nil },
		&river.PeriodicJobOpts{RunOnStart: true},
	))
	periodic.Add(river.NewPeriodicJob(
		river.PeriodicInterval(time.Hour),
		func() (river.JobArgs, *river.InsertOpts) { return jobs.DLQRetryArgs{}, nil },
		nil,
	))
	periodic.Add(river.NewPeriodicJob(
		river.PeriodicInterval(cfg.Maintenance.OrphanSweepInterval),
		func() (river.JobArgs, *river.InsertOpts) { return jobs.OrphanSweepArgs{}, nil },
		nil,
	))
	if cfg.Maintenance.StalePendingTTL > 0 {
		periodic.Add(river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) { return jobs.StalePendingCancelArgs{}, nil },
			nil,
		))
	}
}
