package index

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

// IDField holds the key documents are upserted by.
const IDField = "id"

// IndexWriter adds documents to an index. New documents are buffered as
// one-document segments in memory and merged into dir as they accumulate.
// Methods are serialized by the writer; the commit lock is only taken to
// publish a segments file.
type IndexWriter struct {
	mu     sync.Mutex
	dir    store.Directory
	ramDir *store.RAMDirectory
	opts   Options
	logger *slog.Logger

	infos *SegmentInfos
	// deletionSegments holds readers carrying upsert deletions that are
	// not persisted yet, by segment name.
	deletionSegments map[string]*SegmentReader
	lastMergeCheck   time.Time
	closed           bool
}

// NewIndexWriter opens the index in dir. With create set an empty index
// is committed, replacing any existing one.
func NewIndexWriter(dir store.Directory, create bool, opts Options) (*IndexWriter, error) {
	opts = opts.withDefaults(dir)
	w := &IndexWriter{
		dir:              dir,
		ramDir:           store.NewRAMDirectory(),
		opts:             opts,
		logger:           opts.Logger.With("dir", dir.ID()),
		deletionSegments: make(map[string]*SegmentReader),
	}

	tok, err := commitlock.Acquire(opts.Lock)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	if create {
		w.infos = NewSegmentInfos()
		if v, err := ReadVersion(dir); err == nil {
			w.infos.Version = v
		}
		if err := w.infos.Write(dir, tok, opts.Cache); err != nil {
			return nil, fmt.Errorf("creating index %s: %w", dir.ID(), err)
		}
		removed, err := w.deleteOrphans()
		if err != nil {
			return nil, fmt.Errorf("creating index %s: %w", dir.ID(), err)
		}
		w.logger.Info("index created", "version", w.infos.Version, "orphans_removed", removed)
	} else {
		if w.infos, err = ReadSegmentInfos(dir, tok); err != nil {
			return nil, fmt.Errorf("opening index %s: %w", dir.ID(), err)
		}
		w.logger.Info("index opened",
			"segments", w.infos.Len(),
			"docs", w.infos.TotalDocCount(),
			"version", w.infos.Version,
		)
	}
	w.setSegmentGauge()
	return w, nil
}

// AddDocument indexes doc under id. Earlier documents with the same id
// are deleted; the deletion becomes durable with the next commit of the
// writer. A doc without an id field gets one.
func (w *IndexWriter) AddDocument(id string, doc *Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return pkgerrors.New(pkgerrors.ErrClosed, "adding document", w.dir.ID())
	}
	if doc.GetField(IDField) == nil {
		doc.Add(Keyword(IDField, id))
	}

	replaced, err := w.deleteExisting(id)
	if err != nil {
		return fmt.Errorf("replacing document %q: %w", id, err)
	}

	name := w.infos.NewSegmentName()
	dw := NewDocumentWriter(w.ramDir, w.opts.Analyzer, w.opts.Similarity, w.opts.MaxFieldLength)
	if err := dw.AddDocument(name, doc); err != nil {
		for _, f := range SegmentFiles(name) {
			w.ramDir.Delete(f)
		}
		return fmt.Errorf("adding document %q: %w", id, err)
	}
	w.infos.Add(SegmentInfo{Name: name, DocCount: 1, Dir: w.ramDir})

	if m := w.opts.Metrics; m != nil {
		m.DocsAddedTotal.Inc()
		if replaced > 0 {
			m.DocsReplacedTotal.Add(float64(replaced))
		}
	}
	if replaced > 0 {
		w.logger.Debug("document replaced", "id", id, "copies", replaced)
	}
	return w.maybeMergeSegments()
}

// deleteExisting soft-deletes every document with id in every segment.
func (w *IndexWriter) deleteExisting(id string) (int, error) {
	key := Term{Field: IDField, Text: id}
	total := 0
	for _, info := range w.infos.Segments() {
		r, retained := w.deletionSegments[info.Name]
		if !retained {
			var err error
			if r, err = openSegmentReader(info, w.infos.Version, w.opts); err != nil {
				return total, err
			}
		}
		n, err := markDeleted(r, key)
		if err != nil {
			if !retained {
				r.CloseDiscard()
			}
			return total, err
		}
		total += n
		switch {
		case retained:
		case r.HasPendingMergeDeletions():
			w.deletionSegments[info.Name] = r
		default:
			r.CloseDiscard()
		}
	}
	return total, nil
}

func markDeleted(r *SegmentReader, t Term) (int, error) {
	td := r.termDocs()
	defer td.Close()
	if err := td.Seek(t); err != nil {
		return 0, err
	}
	n := 0
	for {
		ok, err := td.Next()
		if err != nil || !ok {
			return n, err
		}
		if err := r.DoMergeDelete(td.Doc()); err != nil {
			return n, err
		}
		n++
	}
}

// MaybeMergeSegments merges runs of small trailing segments. The check is
// skipped when the previous one happened less than MergeFrequency ago.
func (w *IndexWriter) MaybeMergeSegments() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maybeMergeSegments()
}

func (w *IndexWriter) maybeMergeSegments() error {
	if f := w.opts.MergeFrequency; f > 0 {
		if time.Since(w.lastMergeCheck) < f {
			return nil
		}
	}
	w.lastMergeCheck = time.Now()

	for target := w.opts.MinMergeDocs; target <= w.opts.MaxMergeDocs; target *= w.opts.MergeFactor {
		minSegment := w.infos.Len()
		mergeDocs := 0
		for minSegment > 0 {
			info := w.infos.Info(minSegment - 1)
			if info.DocCount >= target {
				break
			}
			mergeDocs += info.DocCount
			minSegment--
		}
		if mergeDocs < target {
			break
		}
		if err := w.mergeSegments(minSegment); err != nil {
			return err
		}
	}
	return nil
}

// FlushRamSegments merges the buffered segments into the directory,
// together with the last directory segment when that stays small.
func (w *IndexWriter) FlushRamSegments() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushRamSegments()
}

func (w *IndexWriter) flushRamSegments() error {
	n := w.infos.Len()
	minSegment := n - 1
	docCount := 0
	for minSegment >= 0 && w.infos.Info(minSegment).Dir == store.Directory(w.ramDir) {
		docCount += w.infos.Info(minSegment).DocCount
		minSegment--
	}
	if minSegment < 0 ||
		docCount+w.infos.Info(minSegment).DocCount > w.opts.MinMergeDocs ||
		w.infos.Info(n-1).Dir != store.Directory(w.ramDir) {
		minSegment++
	}
	if minSegment >= n {
		return nil
	}
	return w.mergeSegments(minSegment)
}

// Optimize merges the index down to one segment without deletions.
func (w *IndexWriter) Optimize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return pkgerrors.New(pkgerrors.ErrClosed, "optimizing", w.dir.ID())
	}
	if err := w.flushRamSegments(); err != nil {
		return err
	}
	for w.needsOptimize() {
		if err := w.mergeSegments(max(w.infos.Len()-w.opts.MergeFactor, 0)); err != nil {
			return err
		}
	}
	return nil
}

func (w *IndexWriter) needsOptimize() bool {
	switch w.infos.Len() {
	case 0:
		return false
	case 1:
		info := w.infos.Info(0)
		if info.Dir != w.dir || info.Dir.Exists(info.Name+".del") {
			return true
		}
		r, ok := w.deletionSegments[info.Name]
		return ok && r.HasPendingMergeDeletions()
	default:
		return true
	}
}

// MergeSegments merges the segments from position minSegment on into one.
func (w *IndexWriter) MergeSegments(minSegment int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if minSegment < 0 || minSegment >= w.infos.Len() {
		return fmt.Errorf("merging from segment %d of %d: out of range", minSegment, w.infos.Len())
	}
	return w.mergeSegments(minSegment)
}

func (w *IndexWriter) mergeSegments(minSegment int) error {
	start := time.Now()
	name := w.infos.NewSegmentName()
	merger := NewSegmentMerger(w.dir, name, w.logger)

	sources := w.infos.Segments()[minSegment:]
	retained := make(map[*SegmentReader]string)
	for _, info := range sources {
		r, ok := w.deletionSegments[info.Name]
		if ok {
			delete(w.deletionSegments, info.Name)
			retained[r] = info.Name
		} else {
			var err error
			if r, err = openSegmentReader(info, w.infos.Version, w.opts); err != nil {
				w.releaseSources(merger, retained, false)
				w.countMerge("error")
				return fmt.Errorf("merging into %s: %w", name, err)
			}
		}
		merger.Add(r)
	}

	count, err := merger.Merge()
	if err != nil {
		w.releaseSources(merger, retained, false)
		w.deleteFiles(w.dir, name, false)
		w.countMerge("error")
		w.logger.Error("merge failed", "segment", name, "sources", len(sources), "error", err)
		return err
	}

	committed := w.infos.Segments()
	w.infos.Truncate(minSegment)
	if count > 0 {
		w.infos.Add(SegmentInfo{Name: name, DocCount: count, Dir: w.dir})
	}
	if err := w.commit(); err != nil {
		w.infos.infos = committed
		w.releaseSources(merger, retained, false)
		w.deleteFiles(w.dir, name, false)
		w.countMerge("error")
		w.logger.Error("merge commit failed", "segment", name, "error", err)
		return err
	}
	w.releaseSources(merger, retained, true)
	if count == 0 {
		w.deleteFiles(w.dir, name, false)
	}
	for _, info := range sources {
		w.deleteFiles(info.Dir, info.Name, true)
		w.opts.Cache.EvictSegment(info.Name, info.Dir)
	}
	w.flushDeletionSegments()

	elapsed := time.Since(start)
	w.countMerge("ok")
	if m := w.opts.Metrics; m != nil {
		m.MergeDuration.Observe(elapsed.Seconds())
		m.MergedDocsTotal.Add(float64(count))
	}
	w.setSegmentGauge()
	w.logger.Info("segments merged",
		"segment", name,
		"sources", len(sources),
		"docs", count,
		"version", w.infos.Version,
		"duration_ms", elapsed.Milliseconds(),
	)
	if w.opts.OnCommit != nil {
		w.opts.OnCommit(CommitInfo{
			Version:  w.infos.Version,
			Segments: w.infos.Names(),
			DocCount: w.infos.TotalDocCount(),
		})
	}
	return nil
}

// releaseSources closes the readers of a merge. Unless the merge was
// committed, readers holding upsert deletions go back to deletionSegments
// so the deletions survive for the next attempt.
func (w *IndexWriter) releaseSources(m *SegmentMerger, retained map[*SegmentReader]string, committed bool) {
	for _, r := range m.readers {
		if name, ok := retained[r]; ok && !committed {
			w.deletionSegments[name] = r
			continue
		}
		if err := r.CloseDiscard(); err != nil {
			w.logger.Warn("failed to close merge source", "segment", r.Info().Name, "error", err)
		}
	}
}

// commit publishes the segments file.
func (w *IndexWriter) commit() error {
	tok, err := commitlock.Acquire(w.opts.Lock)
	if err != nil {
		return err
	}
	defer tok.Release()

	// readers may have committed deletions since the last write
	if v, err := ReadVersion(w.dir); err == nil && v > w.infos.Version {
		w.infos.Version = v
	}
	if err := w.infos.Write(w.dir, tok, w.opts.Cache); err != nil {
		return err
	}
	if w.opts.Metrics != nil {
		w.opts.Metrics.CommitsTotal.WithLabelValues("writer").Inc()
	}
	return nil
}

func (w *IndexWriter) deleteFiles(dir store.Directory, segment string, withDeletions bool) {
	files := SegmentFiles(segment)
	if withDeletions {
		files = append(files, segment+".del")
	}
	for _, f := range files {
		if !dir.Exists(f) {
			continue
		}
		if err := dir.Delete(f); err != nil {
			w.logger.Warn("failed to delete segment file", "file", f, "error", err)
		}
	}
}

// deleteOrphans removes the files of segments the segments file does not
// list, such as those left behind when an existing index is recreated.
func (w *IndexWriter) deleteOrphans() (int, error) {
	files, err := w.dir.List()
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", w.dir.ID(), err)
	}
	live := make(map[string]struct{}, w.infos.Len())
	for _, name := range w.infos.Names() {
		live[name] = struct{}{}
	}
	removed := 0
	for _, f := range files {
		segment, ok := segmentOf(f)
		if !ok {
			continue
		}
		if _, ok := live[segment]; ok {
			continue
		}
		if err := w.dir.Delete(f); err != nil {
			return removed, fmt.Errorf("deleting orphan %s: %w", f, err)
		}
		w.opts.Cache.EvictSegment(segment, w.dir)
		removed++
	}
	return removed, nil
}

// segmentOf returns the segment a file belongs to, or false for files
// that are not segment files.
func segmentOf(file string) (string, bool) {
	ext := path.Ext(file)
	segment := strings.TrimSuffix(file, ext)
	if !strings.HasPrefix(segment, "_") || len(segment) < 2 {
		return "", false
	}
	if ext == ".del" || slices.Contains(segmentExtensions, ext) {
		return segment, true
	}
	return "", false
}

// flushDeletionSegments persists upsert deletions of segments that were
// not merged. It runs without the commit lock held, so a reader may
// commit in between.
func (w *IndexWriter) flushDeletionSegments() error {
	var errs []error
	for name, r := range w.deletionSegments {
		if err := r.FlushMergeDeletions(); err != nil {
			w.logger.Warn("failed to flush deletions", "segment", name, "error", err)
			errs = append(errs, err)
		}
		errs = append(errs, r.Close())
		delete(w.deletionSegments, name)
	}
	return errors.Join(errs...)
}

func (w *IndexWriter) countMerge(status string) {
	if w.opts.Metrics != nil {
		w.opts.Metrics.MergesTotal.WithLabelValues(status).Inc()
	}
}

func (w *IndexWriter) setSegmentGauge() {
	if w.opts.Metrics != nil {
		w.opts.Metrics.SegmentCount.WithLabelValues(w.dir.ID()).Set(float64(w.infos.Len()))
	}
}

// DocCount returns the number of documents in all segments, buffered and
// deleted ones included.
func (w *IndexWriter) DocCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.TotalDocCount()
}

func (w *IndexWriter) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.Len()
}

// Segments returns a copy of the writer's segment list.
func (w *IndexWriter) Segments() []SegmentInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.infos.Segments()
}

// Directory returns the directory the writer commits to.
func (w *IndexWriter) Directory() store.Directory { return w.dir }

// Close flushes buffered documents and pending deletions.
func (w *IndexWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flushRamSegments()
	return errors.Join(err, w.flushDeletionSegments())
}
