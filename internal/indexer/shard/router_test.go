package shard

import (
	"fmt"
	"os"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, shards int) *Router {
	t.Helper()
	cfg := config.Default().Index
	cfg.DataDir = t.TempDir()
	cfg.NumShards = shards
	cfg.MergeInterval = 0
	r, err := NewRouter(cfg, indexer.Deps{
		CommitLock: config.Default().CommitLock,
		Metrics:    metrics.NewUnregistered(),
		Cache:      index.NewSegmentsCache(index.CacheOptions{Logger: logger.Discard()}),
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)
	return r
}

func TestShardForIsStable(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("doc-%d", i)
		s := ShardFor(id, 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
		assert.Equal(t, s, ShardFor(id, 4))
	}
	assert.Zero(t, ShardFor("anything", 1))
}

func TestParseShardDir(t *testing.T) {
	id, ok := ParseShardDir(ShardDir("/data/index", 5))
	assert.True(t, ok)
	assert.Equal(t, 5, id)
	_, ok = ParseShardDir("/data/index")
	assert.False(t, ok)
}

func TestRouterCreatesShardDirectories(t *testing.T) {
	r := newTestRouter(t, 3)
	defer r.Close()

	assert.Equal(t, 3, r.NumShards())
	engines := r.GetAllEngines()
	require.Len(t, engines, 3)
	for id, engine := range engines {
		_, err := os.Stat(engine.DataDir())
		assert.NoError(t, err, "shard %d", id)
	}
	_, err := r.Route(3)
	assert.Error(t, err)
}

func TestRouterDocumentsStayOnTheirShard(t *testing.T) {
	r := newTestRouter(t, 4)
	defer r.Close()

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		_, engine := r.RouteDocument(id)
		require.NoError(t, engine.IndexDocument(id, "v1", "first"))
	}
	for _, id := range ids {
		_, engine := r.RouteDocument(id)
		require.NoError(t, engine.IndexDocument(id, "v2", "second"))
	}
	require.NoError(t, r.FlushAll())

	total := 0
	for _, engine := range r.GetAllEngines() {
		stats, err := engine.Stats()
		require.NoError(t, err)
		total += stats.NumDocs
	}
	assert.Equal(t, len(ids), total)

	for _, id := range ids {
		shardID, engine := r.RouteDocument(id)
		doc, err := engine.Document(id)
		require.NoError(t, err, "shard %d", shardID)
		assert.Equal(t, "second", doc.Get("body"))
	}
	require.NoError(t, r.OptimizeAll())
}
