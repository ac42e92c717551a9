package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *shard.Router {
	t.Helper()
	cfg := config.Default().Index
	cfg.DataDir = t.TempDir()
	cfg.NumShards = 2
	cfg.MergeInterval = 0
	r, err := shard.NewRouter(cfg, indexer.Deps{
		CommitLock: config.Default().CommitLock,
		Metrics:    metrics.NewUnregistered(),
		Cache:      index.NewSegmentsCache(index.CacheOptions{Logger: logger.Discard()}),
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func encode(t *testing.T, ev ingestion.IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestEventDocument(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := EventDocument(ingestion.IngestEvent{
		DocumentID: "d1",
		Title:      "Title",
		Body:       "Body text",
		Keywords:   map[string]string{"lang": "en", "author": "kim"},
		Stored:     map[string]string{"url": "https://example.com"},
		IngestedAt: at,
	})
	assert.Equal(t, "d1", doc.Get(index.IDField))
	assert.Equal(t, "Title", doc.Get("title"))
	assert.Equal(t, "en", doc.Get("lang"))
	assert.Equal(t, "2024-03-01T12:00:00Z", doc.Get("ingested_at"))

	url := doc.GetField("url")
	require.NotNil(t, url)
	assert.True(t, url.Stored)
	assert.False(t, url.Indexed)
	author := doc.GetField("author")
	require.NotNil(t, author)
	assert.True(t, author.Indexed)
	assert.False(t, author.Tokenized)
}

func TestHandleMessageUpsertAndDelete(t *testing.T) {
	router := newRouter(t)
	handle := HandleMessage(router, nil)
	ctx := context.Background()

	require.NoError(t, handle(ctx, []byte("d1"), encode(t, ingestion.IngestEvent{DocumentID: "d1", Body: "first"})))
	require.NoError(t, handle(ctx, []byte("d1"), encode(t, ingestion.IngestEvent{DocumentID: "d1", Body: "second"})))
	require.NoError(t, router.FlushAll())

	_, engine := router.RouteDocument("d1")
	doc, err := engine.Document("d1")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Get("body"))

	require.NoError(t, handle(ctx, []byte("d1"), encode(t, ingestion.IngestEvent{DocumentID: "d1", Op: ingestion.OpDelete})))
	_, err = engine.Document("d1")
	assert.ErrorIs(t, err, indexer.ErrDocumentNotFound)
}

func TestHandleMessageSkipsBadEvents(t *testing.T) {
	handle := HandleMessage(newRouter(t), nil)
	ctx := context.Background()
	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, encode(t, ingestion.IngestEvent{Body: "no id"})))
}
