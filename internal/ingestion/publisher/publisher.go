// Package publisher produces the indexer's Kafka traffic: ingest events
// for documents to add or delete, recorded as PENDING in PostgreSQL when a
// database is configured, and commit events announcing new index versions.
package publisher

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/tracing"
)

// EventWriter is the producing side of a Kafka topic.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher validates ingest events, records them and publishes them.
type Publisher struct {
	db       *postgres.Client
	producer EventWriter
	logger   *slog.Logger
}

// New creates a Publisher. db may be nil to skip status tracking.
func New(db *postgres.Client, producer EventWriter) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest validates every event, marks the documents PENDING and publishes
// the events keyed by document id, so all versions of a document land on
// the same partition in order.
func (p *Publisher) Ingest(ctx context.Context, events []ingestion.IngestEvent) error {
	now := time.Now().UTC()
	batch := make([]kafka.Event, 0, len(events))
	for i := range events {
		ev := &events[i]
		if err := validator.ValidateIngestEvent(ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.DocumentID, err)
		}
		if ev.IngestedAt.IsZero() {
			ev.IngestedAt = now
		}
		batch = append(batch, kafka.Event{Key: ev.DocumentID, Value: *ev})
	}
	if len(batch) == 0 {
		return nil
	}
	ctx, span := tracing.StartChildSpan(ctx, "publisher.ingest")
	defer span.End()
	span.SetAttr("count", len(batch))

	if p.db != nil {
		_, record := tracing.StartChildSpan(ctx, "postgres.record_pending")
		err := p.db.InTx(ctx, func(tx *sql.Tx) error {
			for _, ev := range events {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO documents (id, content_hash, status, updated_at)
				VALUES ($1, $2, 'PENDING', NOW())
				ON CONFLICT (id) DO UPDATE SET content_hash = EXCLUDED.content_hash, status = 'PENDING', updated_at = NOW()`,
					ev.DocumentID, contentHash(ev))
				if err != nil {
					return fmt.Errorf("recording document %s: %w", ev.DocumentID, err)
				}
			}
			return nil
		})
		record.End()
		if err != nil {
			return fmt.Errorf("recording documents: %w", err)
		}
	}

	_, publish := tracing.StartChildSpan(ctx, "kafka.publish")
	err := p.producer.PublishBatch(ctx, batch)
	publish.End()
	if err != nil {
		p.logger.Error("failed to publish to kafka, documents stuck in PENDING",
			"trace_id", tracing.TraceID(ctx),
			"count", len(batch),
			"error", err,
		)
		return err
	}
	p.logger.Info("ingest events published", "trace_id", tracing.TraceID(ctx), "count", len(batch))
	return nil
}

// CommitHook returns an engine commit callback that publishes a
// CommitEvent for every commit. shardOf maps an engine data directory to
// its shard ID. Publishing failures are logged and otherwise ignored;
// after repeated failures events are dropped without contacting the
// broker until the circuit breaker lets a probe through.
func CommitHook(producer EventWriter, shardOf func(dataDir string) int, timeout time.Duration) func(string, index.CommitInfo) {
	logger := slog.Default().With("component", "commit-publisher")
	breaker := resilience.NewCircuitBreaker("commit-events", resilience.CircuitBreakerConfig{})
	return func(dataDir string, c index.CommitInfo) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		shardID := shardOf(dataDir)
		event := kafka.Event{
			Key: dataDir,
			Value: ingestion.CommitEvent{
				ShardID:     shardID,
				DataDir:     dataDir,
				Version:     c.Version,
				Segments:    c.Segments,
				DocCount:    c.DocCount,
				CommittedAt: time.Now().UTC(),
			},
		}
		err := breaker.Execute(func() error { return producer.Publish(ctx, event) })
		if errors.Is(err, resilience.ErrCircuitOpen) {
			logger.Debug("dropping commit event", "shard_id", shardID, "version", c.Version)
			return
		}
		if err != nil {
			logger.Error("failed to publish commit event",
				"shard_id", shardID,
				"version", c.Version,
				"error", err,
			)
		}
	}
}

func contentHash(ev ingestion.IngestEvent) string {
	if ev.Operation() == ingestion.OpDelete {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(ev.Title+"\x00"+ev.Body)))
}
