package index

import (
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentsCacheSharing(t *testing.T) {
	dir := store.NewRAMDirectory()
	m := metrics.NewUnregistered()
	cache := NewSegmentsCache(CacheOptions{Logger: logger.Discard(), Metrics: m})
	writeDoc(t, dir, "_0", NewDocument(Text("body", "cached words")))

	a, err := cache.GetSegment("_0", dir, 1)
	require.NoError(t, err)
	b, err := cache.GetSegment("_0", dir, 1)
	require.NoError(t, err)
	assert.Same(t, a.bundle, b.bundle)
	assert.Same(t, a.FieldInfos(), b.FieldInfos())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, float64(1), counterValue(t, m.CacheMissesTotal))
	assert.Equal(t, float64(1), counterValue(t, m.CacheHitsTotal))

	n1, err := a.GetNorms("body")
	require.NoError(t, err)
	n2, err := b.GetNorms("body")
	require.NoError(t, err)
	assert.Same(t, &n1[0], &n2[0])
	assert.Equal(t, float64(1), counterValue(t, m.NormLoadsTotal))

	a.Release()
	a.Release()
	b.Release()
	// still mapped
	assert.False(t, b.bundle.destroyed)

	c, err := cache.GetSegment("_0", dir, 1)
	require.NoError(t, err)
	cache.EvictSegment("_0", dir)
	assert.Zero(t, cache.Len())
	assert.False(t, c.bundle.destroyed)
	n3, err := c.GetNorms("body")
	require.NoError(t, err)
	assert.Equal(t, n1, n3)
	c.Release()
	assert.True(t, c.bundle.destroyed)
}

func TestSetValidSegments(t *testing.T) {
	dirA := store.NewRAMDirectory()
	dirB := store.NewRAMDirectory()
	cache := NewSegmentsCache(CacheOptions{Logger: logger.Discard()})
	for _, name := range []string{"_0", "_1"} {
		writeDoc(t, dirA, name, NewDocument(Text("body", "a")))
		ref, err := cache.GetSegment(name, dirA, 1)
		require.NoError(t, err)
		ref.Release()
	}
	writeDoc(t, dirB, "_0", NewDocument(Text("body", "b")))
	refB, err := cache.GetSegment("_0", dirB, 1)
	require.NoError(t, err)
	defer refB.Release()
	require.Equal(t, 3, cache.Len())

	cache.SetValidSegments(dirA, []string{"_1"})
	assert.Equal(t, 2, cache.Len())
	cache.SetValidSegments(dirA, nil)
	assert.Equal(t, 1, cache.Len())
	assert.False(t, refB.bundle.destroyed)
}

func TestSegmentsCacheConcurrentNorms(t *testing.T) {
	dir := store.NewRAMDirectory()
	cache := NewSegmentsCache(CacheOptions{Logger: logger.Discard()})
	writeDoc(t, dir, "_0", NewDocument(Text("body", "parallel"), Text("title", "load")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := cache.GetSegment("_0", dir, 1)
			if !assert.NoError(t, err) {
				return
			}
			defer ref.Release()
			for _, field := range []string{"body", "title"} {
				norms, err := ref.GetNorms(field)
				assert.NoError(t, err)
				assert.Len(t, norms, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, cache.Len())
}
