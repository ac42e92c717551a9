package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service",
		"num_shards", cfg.Index.NumShards,
		"data_dir", cfg.Index.DataDir,
		"commit_lock", cfg.CommitLock.Backend,
	)

	checker := health.NewChecker()
	m := metrics.New(nil)
	deps := indexer.Deps{
		CommitLock: cfg.CommitLock,
		Metrics:    m,
		Cache: index.NewSegmentsCache(index.CacheOptions{
			Logger:  logger.WithComponent("segments-cache"),
			Metrics: m,
		}),
		Logger: slog.Default(),
	}

	startup := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}

	if cfg.CommitLock.Backend == "redis" {
		var rdb *redis.Client
		err := resilience.Retry(context.Background(), "redis connect", startup, func() error {
			var err error
			rdb, err = redis.NewClient(cfg.Redis)
			return err
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		deps.Leases = rdb
		checker.Register("redis", health.PingCheck(rdb.Ping))
	}

	var db *sql.DB
	if cfg.Postgres.Host != "" {
		var pg *postgres.Client
		err := resilience.Retry(context.Background(), "postgres connect", startup, func() error {
			var err error
			pg, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("failed to prepare document status table", "error", err)
			os.Exit(1)
		}
		db = pg.DB
		checker.Register("postgres", health.PingCheck(pg.Ping))
	}

	if topic := cfg.Kafka.Topics.IndexCommit; topic != "" {
		commits := kafka.NewProducer(cfg.Kafka, topic)
		defer commits.Close()
		deps.OnCommit = publisher.CommitHook(commits, func(dataDir string) int {
			id, ok := shard.ParseShardDir(dataDir)
			if !ok {
				return -1
			}
			return id
		}, 5*time.Second)
	}

	router, err := shard.NewRouter(cfg.Index, deps)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	router.RegisterHealthChecks(checker)

	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for shardID, engine := range router.GetAllEngines() {
		engine.StartMergeLoop(ctx)
		slog.Info("merge loop started", "shard_id", shardID, "interval", cfg.Index.MergeInterval)
	}

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleMessage(router, db),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}
