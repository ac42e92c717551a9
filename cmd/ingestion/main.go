// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts documents via POST /api/v1/documents (one event or a
// JSON array) and deletions via DELETE /api/v1/documents/{id}, records them
// as PENDING in PostgreSQL when configured, and publishes them to the ingest
// topic for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	checker := health.NewChecker()
	m := metrics.New(nil)

	var pg *postgres.Client
	if cfg.Postgres.Host != "" {
		err := resilience.Retry(context.Background(), "postgres connect",
			resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second},
			func() error {
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
		checker.Register("postgres", health.PingCheck(pg.Ping))
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	mux := http.NewServeMux()
	handler.New(publisher.New(pg, producer)).Register(mux)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.Trace(logger.WithComponent("trace")),
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

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
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
