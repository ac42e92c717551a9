package index

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
)

type cacheKey struct {
	dir  string
	name string
}

// segmentCache is the immutable per-segment state shared by every reader
// of one segment. It holds one reference for the cache map while mapped and
// one per live SegmentCacheRef.
type segmentCache struct {
	key        cacheKey
	dir        store.Directory
	maxDoc     int
	fieldInfos *FieldInfos
	index      *termIndex

	refMu     sync.Mutex
	refs      int
	destroyed bool

	normsMu sync.RWMutex
	norms   map[int][]byte

	owner *SegmentsCache
}

func (s *segmentCache) acquire() {
	s.refMu.Lock()
	s.refs++
	s.refMu.Unlock()
}

func (s *segmentCache) release() {
	s.refMu.Lock()
	s.refs--
	last := s.refs == 0
	if last {
		s.destroyed = true
	}
	s.refMu.Unlock()
	if last {
		s.destroy()
	}
}

func (s *segmentCache) destroy() {
	s.normsMu.Lock()
	s.norms = nil
	s.normsMu.Unlock()
	s.index = nil
	s.owner.logger.Debug("segment cache entry destroyed", "dir", s.key.dir, "segment", s.key.name)
}

// SegmentCacheRef is a counted handle on a cached segment. Every handle
// must be released exactly once.
type SegmentCacheRef struct {
	once   sync.Once
	bundle *segmentCache
}

func (r *SegmentCacheRef) FieldInfos() *FieldInfos { return r.bundle.fieldInfos }

func (r *SegmentCacheRef) termIndex() *termIndex { return r.bundle.index }

func (r *SegmentCacheRef) MaxDoc() int { return r.bundle.maxDoc }

// Clone returns a second handle on the same segment.
func (r *SegmentCacheRef) Clone() *SegmentCacheRef {
	r.bundle.acquire()
	return &SegmentCacheRef{bundle: r.bundle}
}

// Release drops the handle. The entry is destroyed when it has been
// evicted and this was the last handle.
func (r *SegmentCacheRef) Release() {
	r.once.Do(r.bundle.release)
}

// GetNorms returns the norm bytes of field, reading them from .nrm on first
// use. It returns nil when the segment has no such field.
func (r *SegmentCacheRef) GetNorms(field string) ([]byte, error) {
	s := r.bundle
	num, ok := s.fieldInfos.FieldNumber(field)
	if !ok {
		return nil, nil
	}
	s.normsMu.RLock()
	norms, loaded := s.norms[num]
	s.normsMu.RUnlock()
	if loaded {
		return norms, nil
	}

	s.normsMu.Lock()
	defer s.normsMu.Unlock()
	if norms, loaded := s.norms[num]; loaded {
		return norms, nil
	}
	norms, err := s.readNorms(num)
	if err != nil {
		return nil, err
	}
	if s.norms == nil {
		s.norms = make(map[int][]byte)
	}
	s.norms[num] = norms
	s.owner.metrics.incNormLoads()
	return norms, nil
}

func (s *segmentCache) readNorms(num int) ([]byte, error) {
	in, err := s.dir.OpenInput(s.key.name + ".nrm")
	if err != nil {
		return nil, fmt.Errorf("opening norms of %s: %w", s.key.name, err)
	}
	defer in.Close()
	norms := make([]byte, s.maxDoc)
	if err := in.Seek(int64(num) * int64(s.maxDoc)); err != nil {
		return nil, fmt.Errorf("reading norms of %s: %w", s.key.name, err)
	}
	if err := in.ReadBytes(norms); err != nil {
		return nil, fmt.Errorf("reading norms of %s: %w", s.key.name, err)
	}
	return norms, nil
}

// CacheOptions configures a SegmentsCache. All fields are optional.
type CacheOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// SegmentsCache shares the decoded field infos, term index and norms of
// segments between readers.
type SegmentsCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*segmentCache
	logger  *slog.Logger
	metrics cacheMetrics
}

func NewSegmentsCache(opts CacheOptions) *SegmentsCache {
	l := opts.Logger
	if l == nil {
		l = logger.WithComponent("segment-cache")
	}
	return &SegmentsCache{
		entries: make(map[cacheKey]*segmentCache),
		logger:  l,
		metrics: cacheMetrics{m: opts.Metrics},
	}
}

var (
	defaultCacheOnce sync.Once
	defaultCache     *SegmentsCache
)

// DefaultCache returns the process-wide cache used when none is configured.
func DefaultCache() *SegmentsCache {
	defaultCacheOnce.Do(func() {
		defaultCache = NewSegmentsCache(CacheOptions{})
	})
	return defaultCache
}

// GetSegment returns a handle on segment name of dir, loading .fnm and
// .tii on first use.
func (c *SegmentsCache) GetSegment(name string, dir store.Directory, maxDoc int) (*SegmentCacheRef, error) {
	key := cacheKey{dir: dir.ID(), name: name}
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.entries[key]; ok {
		c.metrics.incHits()
		s.acquire()
		return &SegmentCacheRef{bundle: s}, nil
	}
	c.metrics.incMisses()
	fi, err := ReadFieldInfos(dir, name+".fnm")
	if err != nil {
		return nil, fmt.Errorf("loading field infos of %s: %w", name, err)
	}
	idx, err := readTermIndex(dir, name, fi)
	if err != nil {
		return nil, fmt.Errorf("loading term index of %s: %w", name, err)
	}
	s := &segmentCache{
		key:        key,
		dir:        dir,
		maxDoc:     maxDoc,
		fieldInfos: fi,
		index:      idx,
		refs:       2,
		owner:      c,
	}
	c.entries[key] = s
	c.metrics.setEntries(len(c.entries))
	return &SegmentCacheRef{bundle: s}, nil
}

// EvictSegment unmaps segment name of dir. Open handles stay valid.
func (c *SegmentsCache) EvictSegment(name string, dir store.Directory) {
	c.mu.Lock()
	key := cacheKey{dir: dir.ID(), name: name}
	s, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.metrics.setEntries(len(c.entries))
	}
	c.mu.Unlock()
	if ok {
		c.metrics.incEvictions()
		c.logger.Debug("segment evicted", "dir", key.dir, "segment", name)
		s.release()
	}
}

// SetValidSegments evicts every segment of dir whose name is not in names.
func (c *SegmentsCache) SetValidSegments(dir store.Directory, names []string) {
	valid := make(map[string]struct{}, len(names))
	for _, n := range names {
		valid[n] = struct{}{}
	}
	id := dir.ID()
	var evicted []*segmentCache
	c.mu.Lock()
	for key, s := range c.entries {
		if key.dir != id {
			continue
		}
		if _, ok := valid[key.name]; !ok {
			delete(c.entries, key)
			evicted = append(evicted, s)
		}
	}
	c.metrics.setEntries(len(c.entries))
	c.mu.Unlock()
	for _, s := range evicted {
		c.metrics.incEvictions()
		c.logger.Debug("segment evicted", "dir", id, "segment", s.key.name)
		s.release()
	}
}

// Len returns the number of mapped segments.
func (c *SegmentsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type cacheMetrics struct {
	m *metrics.Metrics
}

func (cm cacheMetrics) incHits() {
	if cm.m != nil {
		cm.m.CacheHitsTotal.Inc()
	}
}

func (cm cacheMetrics) incMisses() {
	if cm.m != nil {
		cm.m.CacheMissesTotal.Inc()
	}
}

func (cm cacheMetrics) incEvictions() {
	if cm.m != nil {
		cm.m.CacheEvictionsTotal.Inc()
	}
}

func (cm cacheMetrics) incNormLoads() {
	if cm.m != nil {
		cm.m.NormLoadsTotal.Inc()
	}
}

func (cm cacheMetrics) setEntries(n int) {
	if cm.m != nil {
		cm.m.CacheEntries.Set(float64(n))
	}
}
