package index

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
)

// SegmentReader reads one segment.
type SegmentReader struct {
	info    SegmentInfo
	opts    Options
	logger  *slog.Logger
	version uint32

	core       *SegmentCacheRef
	fieldInfos *FieldInfos
	fields     *FieldsReader
	tis        *TermInfosReader
	freq       store.IndexInput
	prox       store.IndexInput

	mu           sync.RWMutex
	deleted      *BitVector
	deletedDirty bool
	pendingMerge bool
	closed       bool
}

// OpenSegmentReader opens the segment described by info. The reader
// remembers the committed generation of info.Dir at open time.
func OpenSegmentReader(info SegmentInfo, opts Options) (*SegmentReader, error) {
	opts = opts.withDefaults(info.Dir)
	version, err := ReadVersion(info.Dir)
	if err != nil && !errors.Is(err, store.ErrNotExist) {
		return nil, err
	}
	return openSegmentReader(info, version, opts)
}

func openSegmentReader(info SegmentInfo, version uint32, opts Options) (_ *SegmentReader, err error) {
	r := &SegmentReader{
		info:    info,
		opts:    opts,
		logger:  logger.WithSegment(opts.Logger, info.Dir.ID(), info.Name),
		version: version,
	}
	defer func() {
		if err != nil {
			r.closeFiles()
			err = fmt.Errorf("opening segment %s: %w", info.Name, err)
		}
	}()

	if r.core, err = opts.Cache.GetSegment(info.Name, info.Dir, info.DocCount); err != nil {
		return nil, err
	}
	r.fieldInfos = r.core.FieldInfos()
	if r.fields, err = OpenFieldsReader(info.Dir, info.Name, r.fieldInfos); err != nil {
		return nil, err
	}
	if r.fields.Size() != info.DocCount {
		return nil, pkgerrors.Corruptf(info.Name+".fdx", "holds %d documents, expected %d", r.fields.Size(), info.DocCount)
	}
	if info.Dir.Exists(info.Name + ".del") {
		if r.deleted, err = ReadBitVector(info.Dir, info.Name+".del"); err != nil {
			return nil, err
		}
		if r.deleted.Size() != info.DocCount {
			return nil, pkgerrors.Corruptf(info.Name+".del", "covers %d documents, expected %d", r.deleted.Size(), info.DocCount)
		}
	}
	if r.tis, err = OpenTermInfosReader(info.Dir, info.Name, r.fieldInfos, r.core.termIndex()); err != nil {
		return nil, err
	}
	if r.freq, err = info.Dir.OpenInput(info.Name + ".frq"); err != nil {
		return nil, err
	}
	if r.prox, err = info.Dir.OpenInput(info.Name + ".prx"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SegmentReader) closeFiles() error {
	var errs []error
	if r.fields != nil {
		errs = append(errs, r.fields.Close())
	}
	if r.tis != nil {
		errs = append(errs, r.tis.Close())
	}
	if r.freq != nil {
		errs = append(errs, r.freq.Close())
	}
	if r.prox != nil {
		errs = append(errs, r.prox.Close())
	}
	if r.core != nil {
		r.core.Release()
	}
	return errors.Join(errs...)
}

// Info returns the segment the reader was opened on.
func (r *SegmentReader) Info() SegmentInfo { return r.info }

func (r *SegmentReader) MaxDoc() int { return r.info.DocCount }

func (r *SegmentReader) NumDocs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.deleted == nil {
		return r.info.DocCount
	}
	return r.info.DocCount - r.deleted.Count()
}

func (r *SegmentReader) HasDeletions() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deleted != nil && r.deleted.Count() > 0
}

func (r *SegmentReader) IsDeleted(n int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deleted != nil && r.deleted.Get(n)
}

func (r *SegmentReader) Document(n int) (*Document, error) {
	if r.IsDeleted(n) {
		return nil, pkgerrors.New(pkgerrors.ErrDocDeleted, fmt.Sprintf("reading document %d", n), r.info.Name)
	}
	return r.fields.Doc(n)
}

func (r *SegmentReader) Norms(field string) ([]byte, error) {
	return r.core.GetNorms(field)
}

func (r *SegmentReader) FieldNames(indexed bool) []string {
	return r.fieldInfos.Names(indexed)
}

func (r *SegmentReader) termEnum() *SegmentTermEnum {
	return r.tis.Terms()
}

func (r *SegmentReader) Terms() (TermEnum, error) {
	return r.tis.Terms(), nil
}

func (r *SegmentReader) TermsFrom(t Term) (TermEnum, error) {
	return r.tis.TermsFrom(t)
}

func (r *SegmentReader) DocFreq(t Term) (int, error) {
	ti, err := r.tis.Get(t)
	if err != nil || ti == nil {
		return 0, err
	}
	return int(ti.DocFreq), nil
}

func (r *SegmentReader) termDocs() *SegmentTermDocs {
	return newSegmentTermDocs(r)
}

func (r *SegmentReader) TermDocs() (TermDocs, error) {
	return r.termDocs(), nil
}

func (r *SegmentReader) TermPositions() (TermPositions, error) {
	return newSegmentTermPositions(r), nil
}

// Delete marks document n deleted unless the reader is stale.
func (r *SegmentReader) Delete(n int) error {
	stale, err := isStale(r.info.Dir, r.version, r.logger)
	if err != nil {
		return err
	}
	if stale {
		r.countStale()
		return nil
	}
	return r.DoDelete(n)
}

func (r *SegmentReader) DeleteTerm(t Term) (int, error) {
	stale, err := isStale(r.info.Dir, r.version, r.logger)
	if err != nil {
		return 0, err
	}
	if stale {
		r.countStale()
		return 0, nil
	}
	return deleteTerm(r, t)
}

func (r *SegmentReader) countStale() {
	if r.opts.Metrics != nil {
		r.opts.Metrics.StaleDeletesTotal.Inc()
	}
}

// DoDelete marks document n deleted; the deletion is committed on Close.
func (r *SegmentReader) DoDelete(n int) error {
	if err := r.mark(n); err != nil {
		return err
	}
	r.mu.Lock()
	r.deletedDirty = true
	r.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.DeletesTotal.WithLabelValues("reader").Inc()
	}
	return nil
}

// DoMergeDelete marks document n deleted without scheduling a commit. The
// mark is persisted only by FlushMergeDeletions.
func (r *SegmentReader) DoMergeDelete(n int) error {
	if err := r.mark(n); err != nil {
		return err
	}
	r.mu.Lock()
	r.pendingMerge = true
	r.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.DeletesTotal.WithLabelValues("merge").Inc()
	}
	return nil
}

func (r *SegmentReader) mark(n int) error {
	if n < 0 || n >= r.info.DocCount {
		return pkgerrors.New(pkgerrors.ErrDocRange, fmt.Sprintf("deleting document %d", n), r.info.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted == nil {
		r.deleted = NewBitVector(r.info.DocCount)
	}
	r.deleted.Set(n)
	return nil
}

// HasPendingMergeDeletions reports whether DoMergeDelete marks are not yet
// persisted.
func (r *SegmentReader) HasPendingMergeDeletions() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pendingMerge
}

// FlushMergeDeletions commits marks made by DoMergeDelete. It does nothing
// when there are none or they were already flushed.
func (r *SegmentReader) FlushMergeDeletions() error {
	r.mu.RLock()
	pending := r.pendingMerge
	r.mu.RUnlock()
	if !pending {
		return nil
	}
	if err := r.commitDeletions(); err != nil {
		return err
	}
	r.mu.Lock()
	r.pendingMerge = false
	r.mu.Unlock()
	return nil
}

// commitDeletions rewrites .del and bumps the segments generation under the
// commit lock.
func (r *SegmentReader) commitDeletions() error {
	tok, err := commitlock.Acquire(r.opts.Lock)
	if err != nil {
		return err
	}
	defer tok.Release()

	dir := r.info.Dir
	r.mu.RLock()
	deleted := r.deleted.Clone()
	r.mu.RUnlock()

	tmp := r.info.Name + ".tmp"
	if err := deleted.Write(dir, tmp); err != nil {
		return fmt.Errorf("writing deletions of %s: %w", r.info.Name, err)
	}
	if err := dir.Rename(tmp, r.info.Name+".del"); err != nil {
		return fmt.Errorf("committing deletions of %s: %w", r.info.Name, err)
	}
	// segments of the writer's RAM directory have no segments file
	if dir.Exists(SegmentsFile) {
		infos, err := ReadSegmentInfos(dir, tok)
		if err != nil {
			return err
		}
		if err := infos.Write(dir, tok, r.opts.Cache); err != nil {
			return err
		}
		if r.opts.Metrics != nil {
			r.opts.Metrics.CommitsTotal.WithLabelValues("reader").Inc()
		}
		r.logger.Info("committed deletions", "deleted", deleted.Count(), "version", infos.Version)
	}
	return dir.Sync()
}

// Close commits deletions made by DoDelete and releases the segment.
func (r *SegmentReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	dirty := r.deletedDirty
	r.mu.Unlock()

	var commitErr error
	if dirty {
		commitErr = r.commitDeletions()
		if commitErr == nil {
			r.mu.Lock()
			r.deletedDirty = false
			r.pendingMerge = false
			r.mu.Unlock()
		}
	}
	return errors.Join(commitErr, r.closeFiles())
}

// CloseDiscard releases the segment without persisting any deletion.
func (r *SegmentReader) CloseDiscard() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.pendingMerge = false
	r.deletedDirty = false
	r.mu.Unlock()
	return r.closeFiles()
}
