// Package shard partitions documents over independent index engines. Each
// shard owns an indexer.Engine backed by its own data directory, and a
// document id always hashes to the same shard so replacements and deletes
// find the earlier copy.
package shard

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
)

// Router maps shard IDs to dedicated indexer.Engine instances.
type Router struct {
	engines   map[int]*indexer.Engine
	mu        sync.RWMutex
	numShards int
	logger    *slog.Logger
}

// NewRouter opens cfg.NumShards engines, each in its own sub-directory
// under cfg.DataDir.
func NewRouter(cfg config.IndexConfig, deps indexer.Deps) (*Router, error) {
	numShards := cfg.NumShards
	if numShards < 1 {
		numShards = 1
	}
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	r := &Router{
		engines:   make(map[int]*indexer.Engine, numShards),
		numShards: numShards,
		logger:    l.With("component", "shard-router"),
	}
	for i := 0; i < numShards; i++ {
		shardCfg := cfg
		shardCfg.DataDir = ShardDir(cfg.DataDir, i)
		engine, err := indexer.NewEngine(shardCfg, deps)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("creating engine for shard %d: %w", i, err)
		}
		r.engines[i] = engine
		r.logger.Info("shard engine initialized",
			"shard_id", i,
			"data_dir", shardCfg.DataDir,
		)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// ShardDir returns the data directory of shard id under base.
func ShardDir(base string, id int) string {
	return filepath.Join(base, fmt.Sprintf("shard-%d", id))
}

// ParseShardDir returns the shard ID encoded in the last element of a
// directory made by ShardDir.
func ParseShardDir(dir string) (int, bool) {
	var id int
	if _, err := fmt.Sscanf(filepath.Base(dir), "shard-%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// ShardFor returns the shard that owns docID.
func ShardFor(docID string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(numShards))
}

// Route returns the Engine responsible for the given shard ID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[shardID]
	if !ok {
		return nil, fmt.Errorf("unknown shard ID %d (valid range: 0-%d)", shardID, r.numShards-1)
	}
	return engine, nil
}

// RouteDocument returns the shard ID and Engine that own docID.
func (r *Router) RouteDocument(docID string) (int, *indexer.Engine) {
	id := ShardFor(docID, r.numShards)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id, r.engines[id]
}

// GetAllEngines returns a snapshot map of all shard engines.
func (r *Router) GetAllEngines() map[int]*indexer.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[int]*indexer.Engine, len(r.engines))
	for id, engine := range r.engines {
		result[id] = engine
	}
	return result
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// FlushAll flushes the buffered documents of every shard.
func (r *Router) FlushAll() error {
	return r.each("flush", (*indexer.Engine).Flush)
}

// OptimizeAll merges every shard down to a single segment.
func (r *Router) OptimizeAll() error {
	return r.each("optimize", (*indexer.Engine).Optimize)
}

// RegisterHealthChecks adds one index check per shard to checker.
func (r *Router) RegisterHealthChecks(checker *health.Checker) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, engine := range r.engines {
		checker.Register(fmt.Sprintf("index-shard-%d", id), engine.HealthCheck())
	}
}

// Close flushes and closes every shard engine.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAll()
}

func (r *Router) each(op string, fn func(*indexer.Engine) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for id, engine := range r.engines {
		if err := fn(engine); err != nil {
			r.logger.Error(op+" failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("shard %d: %w", id, err)
			}
		}
	}
	return firstErr
}

// closeAll closes every shard engine, collecting the first error encountered.
func (r *Router) closeAll() error {
	var firstErr error
	for id, engine := range r.engines {
		if err := engine.Close(); err != nil {
			r.logger.Error("close failed", "shard_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
