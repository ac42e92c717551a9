package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps() Deps {
	return Deps{
		CommitLock: config.Default().CommitLock,
		Metrics:    metrics.NewUnregistered(),
		Cache:      index.NewSegmentsCache(index.CacheOptions{Logger: logger.Discard()}),
		Logger:     logger.Discard(),
	}
}

func newTestEngine(t *testing.T, dataDir string, deps Deps) *Engine {
	t.Helper()
	cfg := config.Default().Index
	cfg.DataDir = dataDir
	cfg.MergeInterval = 0
	e, err := NewEngine(cfg, deps)
	require.NoError(t, err)
	return e
}

func TestEngineLookupAndDocument(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), testDeps())
	defer e.Close()

	require.NoError(t, e.IndexDocument("d1", "Go segments", "merging segments keeps lookups fast"))
	require.NoError(t, e.IndexDocument("d2", "Other", "nothing relevant here"))
	require.NoError(t, e.Flush())

	hits, err := e.Search("body", "Segments")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].ID)
	assert.Equal(t, 1, hits[0].Freq)
	assert.Equal(t, []int{1}, hits[0].Positions)

	doc, err := e.Document("d1")
	require.NoError(t, err)
	assert.Equal(t, "Go segments", doc.Get("title"))

	_, err = e.Document("missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	hits, err = e.Search("body", "...")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEngineReplaceAndDelete(t *testing.T) {
	e := newTestEngine(t, t.TempDir(), testDeps())
	defer e.Close()

	require.NoError(t, e.IndexDocument("d1", "t", "alpha"))
	require.NoError(t, e.IndexDocument("d1", "t", "beta"))
	require.NoError(t, e.IndexDocument("d2", "t", "beta"))
	require.NoError(t, e.Flush())

	hits, err := e.Search("body", "alpha")
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = e.Search("body", "beta")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	n, err := e.Delete("d1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = e.Document("d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumDocs)
	assert.Equal(t, 2, stats.MaxDoc)

	require.NoError(t, e.Optimize())
	stats, err = e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, 1, stats.MaxDoc)

	n, err = e.Delete("d1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngineReopen(t *testing.T) {
	dataDir := t.TempDir()
	var mu sync.Mutex
	var commits []index.CommitInfo
	deps := testDeps()
	deps.OnCommit = func(dir string, c index.CommitInfo) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, c)
	}

	e := newTestEngine(t, dataDir, deps)
	require.NoError(t, e.IndexDocument("kept", "title", "persisted body"))
	require.NoError(t, e.Close())
	mu.Lock()
	require.NotEmpty(t, commits)
	mu.Unlock()

	e = newTestEngine(t, dataDir, testDeps())
	defer e.Close()
	doc, err := e.Document("kept")
	require.NoError(t, err)
	assert.Equal(t, "persisted body", doc.Get("body"))

	stats, err := e.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumDocs)
	assert.Equal(t, e.DataDir(), stats.DataDir)

	checker := health.NewChecker()
	checker.Register("index", e.HealthCheck())
	report := checker.Run(context.Background())
	assert.Equal(t, health.StatusUp, report.Status)
	assert.EqualValues(t, 1, report.Components["index"].Details["num_docs"])
}

func TestEngineMergeLoop(t *testing.T) {
	cfg := config.Default().Index
	cfg.DataDir = t.TempDir()
	cfg.MergeInterval = 10 * time.Millisecond
	e, err := NewEngine(cfg, testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	e.StartMergeLoop(ctx)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.IndexDocument(id, id, "loop"))
	}
	require.Eventually(t, func() bool {
		stats, err := e.Stats()
		return err == nil && stats.NumDocs == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, e.Close())
}
