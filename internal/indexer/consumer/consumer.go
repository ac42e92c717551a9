// Package consumer reads ingest events from Kafka and applies them to the
// shard engines: upserts become documents added under their id, deletes
// remove the document from its shard.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/kafka"
)

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// EventDocument builds the index document of an upsert event. Keywords are
// indexed untokenized, stored fields are kept but not indexed.
func EventDocument(ev ingestion.IngestEvent) *index.Document {
	doc := index.NewDocument(index.Keyword(index.IDField, ev.DocumentID))
	if ev.Title != "" {
		doc.Add(index.Text("title", ev.Title))
	}
	if ev.Body != "" {
		doc.Add(index.Text("body", ev.Body))
	}
	for _, name := range sortedKeys(ev.Keywords) {
		doc.Add(index.Keyword(name, ev.Keywords[name]))
	}
	for _, name := range sortedKeys(ev.Stored) {
		doc.Add(index.UnIndexed(name, ev.Stored[name]))
	}
	if !ev.IngestedAt.IsZero() {
		doc.Add(index.UnIndexed("ingested_at", ev.IngestedAt.UTC().Format(time.RFC3339)))
	}
	return doc
}

// HandleMessage returns a Kafka MessageHandler that routes each ingest event
// to the shard owning its document id. If db is non-nil, the document
// status is updated in PostgreSQL after the event is applied.
//
// Undecodable and invalid events are logged and skipped so they do not
// block the partition; index failures are returned and the message is
// not committed.
func HandleMessage(router *shard.Router, db *sql.DB) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if err := validator.ValidateIngestEvent(&event); err != nil {
			logger.Error("dropping invalid ingest event",
				"doc_id", event.DocumentID,
				"error", err,
			)
			return nil
		}

		shardID, engine := router.RouteDocument(event.DocumentID)
		logger.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"op", event.Operation(),
			"shard_id", shardID,
		)

		switch event.Operation() {
		case ingestion.OpDelete:
			n, err := engine.Delete(event.DocumentID)
			if err != nil {
				updateDocStatus(ctx, db, event.DocumentID, "FAILED", logger)
				return fmt.Errorf("deleting document %s in shard %d: %w", event.DocumentID, shardID, err)
			}
			updateDocStatus(ctx, db, event.DocumentID, "DELETED", logger)
			logger.Info("document deleted",
				"doc_id", event.DocumentID,
				"shard_id", shardID,
				"deleted", n,
			)
		default:
			if err := engine.AddDocument(event.DocumentID, EventDocument(event)); err != nil {
				updateDocStatus(ctx, db, event.DocumentID, "FAILED", logger)
				return fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
			}
			updateDocStatus(ctx, db, event.DocumentID, "INDEXED", logger)
			logger.Info("document indexed",
				"doc_id", event.DocumentID,
				"shard_id", shardID,
			)
		}
		return nil
	}
}

// updateDocStatus updates the document's status and indexed_at timestamp in PostgreSQL.
// If db is nil, the update is silently skipped.
func updateDocStatus(ctx context.Context, db *sql.DB, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	_, err := db.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	if err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
