// Package indexer runs one segment index directory: it owns the index
// writer, keeps a shared read view that is reopened after every commit,
// and drives the periodic flush and merge loop.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
)

// ErrDocumentNotFound is returned by Document when no live document has
// the requested id.
var ErrDocumentNotFound = errors.New("document not found")

// Deps are the collaborators shared by every engine of a process.
type Deps struct {
	CommitLock config.CommitLockConfig
	// Leases backs the redis commit lock backend.
	Leases  commitlock.LeaseClient
	Metrics *metrics.Metrics
	Cache   *index.SegmentsCache
	Logger  *slog.Logger
	// OnCommit is called after every segments file written by the engine's
	// writer.
	OnCommit func(dataDir string, c index.CommitInfo)
}

// Hit is one live document containing a looked up term.
type Hit struct {
	ID        string `json:"id"`
	Doc       int    `json:"doc"`
	Freq      int    `json:"freq"`
	Positions []int  `json:"positions"`
}

// Stats summarizes the committed state of an engine's index.
type Stats struct {
	DataDir  string `json:"data_dir"`
	Version  uint32 `json:"version"`
	Segments int    `json:"segments"`
	MaxDoc   int    `json:"max_doc"`
	NumDocs  int    `json:"num_docs"`
}

type Engine struct {
	dir    *store.FSDirectory
	writer *index.IndexWriter
	opts   index.Options
	cfg    config.IndexConfig
	logger *slog.Logger

	// writeMu orders adds against deletes, which go through a reader.
	writeMu sync.Mutex

	readerMu sync.RWMutex
	reader   index.IndexReader
}

// NewEngine opens the index in cfg.DataDir, creating it when the directory
// holds no segments file.
func NewEngine(cfg config.IndexConfig, deps Deps) (*Engine, error) {
	dir, err := store.NewFSDirectory(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	lock, err := commitlock.FromConfig(deps.CommitLock, dir.Path(), deps.Leases)
	if err != nil {
		return nil, fmt.Errorf("creating commit lock: %w", err)
	}
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	e := &Engine{
		dir:    dir,
		cfg:    cfg,
		logger: l.With("component", "indexer", "data_dir", dir.Path()),
	}

	opts := index.OptionsFromConfig(cfg)
	opts.Lock = lock
	opts.Cache = deps.Cache
	opts.Metrics = deps.Metrics
	opts.Logger = l.With("component", "index", "data_dir", dir.Path())
	opts.OnCommit = func(c index.CommitInfo) {
		e.invalidateReader()
		if deps.OnCommit != nil {
			deps.OnCommit(dir.Path(), c)
		}
	}
	e.opts = opts

	create := !dir.Exists(index.SegmentsFile)
	w, err := index.NewIndexWriter(dir, create, opts)
	if err != nil {
		return nil, fmt.Errorf("opening index writer: %w", err)
	}
	e.writer = w
	e.logger.Info("index engine ready",
		"created", create,
		"segments", w.SegmentCount(),
		"docs", w.DocCount(),
	)
	return e, nil
}

// DataDir returns the absolute index directory.
func (e *Engine) DataDir() string { return e.dir.Path() }

// AddDocument adds doc under id, replacing any document with the same id.
func (e *Engine) AddDocument(id string, doc *index.Document) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := e.writer.AddDocument(id, doc); err != nil {
		return fmt.Errorf("adding document %s: %w", id, err)
	}
	e.logger.Debug("document added", "doc_id", id, "segments", e.writer.SegmentCount())
	return nil
}

// IndexDocument adds a title/body document under id.
func (e *Engine) IndexDocument(id, title, body string) error {
	return e.AddDocument(id, index.NewDocument(
		index.Text("title", title),
		index.Text("body", body),
	))
}

// Delete removes the document with the given id and commits the deletion.
// It returns how many documents were deleted.
func (e *Engine) Delete(id string) (int, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	// buffered documents are invisible to readers until flushed
	if err := e.writer.FlushRamSegments(); err != nil {
		return 0, fmt.Errorf("flushing before delete: %w", err)
	}
	r, err := index.OpenReader(e.dir, e.opts)
	if err != nil {
		return 0, fmt.Errorf("opening reader for delete: %w", err)
	}
	n, err := r.DeleteTerm(index.NewTerm(index.IDField, id))
	if err != nil {
		r.Close()
		return 0, fmt.Errorf("deleting document %s: %w", id, err)
	}
	if err := r.Close(); err != nil {
		return 0, fmt.Errorf("committing delete of %s: %w", id, err)
	}
	if n > 0 {
		e.invalidateReader()
	}
	e.logger.Info("document deleted", "doc_id", id, "deleted", n)
	return n, nil
}

// Flush writes buffered documents into a committed segment.
func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.writer.FlushRamSegments()
}

// Optimize merges the index down to a single segment without deletions.
func (e *Engine) Optimize() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	start := time.Now()
	if err := e.writer.Optimize(); err != nil {
		return fmt.Errorf("optimizing index: %w", err)
	}
	e.logger.Info("index optimized", "docs", e.writer.DocCount(), "duration", time.Since(start))
	return nil
}

// Lookup returns the live documents containing t with their positions.
func (e *Engine) Lookup(t index.Term) ([]Hit, error) {
	var hits []Hit
	err := e.withReader(func(r index.IndexReader) error {
		var err error
		hits, err = LookupIn(r, t)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", t, err)
	}
	return hits, nil
}

// LookupIn collects the hits of t from r.
func LookupIn(r index.IndexReader, t index.Term) ([]Hit, error) {
	tp, err := r.TermPositions()
	if err != nil {
		return nil, err
	}
	defer tp.Close()
	if err := tp.Seek(t); err != nil {
		return nil, err
	}
	var hits []Hit
	for {
		ok, err := tp.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return hits, nil
		}
		hit := Hit{Doc: tp.Doc(), Freq: tp.Freq(), Positions: make([]int, 0, tp.Freq())}
		for i := 0; i < hit.Freq; i++ {
			pos, err := tp.NextPosition()
			if err != nil {
				return nil, err
			}
			hit.Positions = append(hit.Positions, pos)
		}
		doc, err := r.Document(hit.Doc)
		if err != nil {
			return nil, err
		}
		hit.ID = doc.Get(index.IDField)
		hits = append(hits, hit)
	}
}

// NormalizeTerm builds the term text would be indexed as: its first word,
// lower-cased. ok is false when text has no word.
func NormalizeTerm(field, text string) (index.Term, bool) {
	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return index.Term{}, false
	}
	return index.NewTerm(field, tokens[0].Term), true
}

// Search normalizes the first word of text the way indexed text is
// normalized and looks it up in field.
func (e *Engine) Search(field, text string) ([]Hit, error) {
	t, ok := NormalizeTerm(field, text)
	if !ok {
		return nil, nil
	}
	return e.Lookup(t)
}

// Document returns the stored fields of the live document with id.
func (e *Engine) Document(id string) (*index.Document, error) {
	var doc *index.Document
	err := e.withReader(func(r index.IndexReader) error {
		td, err := r.TermDocs()
		if err != nil {
			return err
		}
		defer td.Close()
		if err := td.Seek(index.NewTerm(index.IDField, id)); err != nil {
			return err
		}
		ok, err := td.Next()
		if err != nil {
			return err
		}
		if !ok {
			return ErrDocumentNotFound
		}
		doc, err = r.Document(td.Doc())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", id, err)
	}
	return doc, nil
}

// Stats reports the committed state of the index.
func (e *Engine) Stats() (Stats, error) {
	s := Stats{DataDir: e.dir.Path()}
	v, err := index.ReadVersion(e.dir)
	if err != nil {
		return s, fmt.Errorf("reading index version: %w", err)
	}
	s.Version = v
	err = e.withReader(func(r index.IndexReader) error {
		s.MaxDoc = r.MaxDoc()
		s.NumDocs = r.NumDocs()
		return nil
	})
	if err != nil {
		return s, err
	}
	s.Segments = e.writer.SegmentCount()
	return s, nil
}

// HealthCheck reports the index down when its committed state cannot be
// read.
func (e *Engine) HealthCheck() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		s, err := e.Stats()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status: health.StatusUp,
			Details: map[string]any{
				"data_dir": s.DataDir,
				"version":  s.Version,
				"segments": s.Segments,
				"max_doc":  s.MaxDoc,
				"num_docs": s.NumDocs,
			},
		}
	}
}

// StartMergeLoop flushes buffered documents and runs the merge policy every
// MergeInterval until ctx is cancelled, then flushes one last time.
func (e *Engine) StartMergeLoop(ctx context.Context) {
	if e.cfg.MergeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.MergeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("merge loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
					continue
				}
				if err := e.writer.MaybeMergeSegments(); err != nil {
					e.logger.Error("periodic merge failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes buffered documents and releases the writer and the shared
// reader.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	err := e.writer.Close()
	e.writeMu.Unlock()
	e.invalidateReader()
	if err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	return err
}

func (e *Engine) withReader(fn func(index.IndexReader) error) error {
	for {
		e.readerMu.RLock()
		if r := e.reader; r != nil {
			defer e.readerMu.RUnlock()
			return fn(r)
		}
		e.readerMu.RUnlock()

		e.readerMu.Lock()
		if e.reader == nil {
			r, err := index.OpenReader(e.dir, e.opts)
			if err != nil {
				e.readerMu.Unlock()
				return fmt.Errorf("opening index reader: %w", err)
			}
			e.reader = r
		}
		e.readerMu.Unlock()
	}
}

func (e *Engine) invalidateReader() {
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	if e.reader == nil {
		return
	}
	if err := e.reader.Close(); err != nil {
		e.logger.Error("closing index reader", "error", err)
	}
	e.reader = nil
}
