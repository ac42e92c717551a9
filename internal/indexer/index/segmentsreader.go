package index

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// SegmentsReader presents several segments as one index. Document numbers
// of segment i are shifted by the number of documents in segments before
// it.
type SegmentsReader struct {
	dir     store.Directory
	readers []*SegmentReader
	starts  []int
	maxDoc  int
	version uint32
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	numDocs int

	normsGroup singleflight.Group
	normsMu    sync.RWMutex
	norms      map[string][]byte
}

// NewSegmentsReader composes readers, which the SegmentsReader then owns.
func NewSegmentsReader(dir store.Directory, readers []*SegmentReader, opts Options) *SegmentsReader {
	version, err := ReadVersion(dir)
	if err != nil {
		version = 0
	}
	return newSegmentsReader(dir, readers, version, opts.withDefaults(dir))
}

func newSegmentsReader(dir store.Directory, readers []*SegmentReader, version uint32, opts Options) *SegmentsReader {
	r := &SegmentsReader{
		dir:     dir,
		readers: readers,
		starts:  make([]int, len(readers)+1),
		version: version,
		opts:    opts,
		logger:  opts.Logger.With("dir", dir.ID()),
		numDocs: -1,
		norms:   make(map[string][]byte),
	}
	for i, sr := range readers {
		r.starts[i] = r.maxDoc
		r.maxDoc += sr.MaxDoc()
	}
	r.starts[len(readers)] = r.maxDoc
	return r
}

// ReaderIndex returns the index of the segment holding document n. When
// several segments share a base, the last of them (the non-empty one) is
// chosen.
func (r *SegmentsReader) ReaderIndex(n int) int {
	lo, hi := 0, len(r.readers)-1
	for hi >= lo {
		mid := (lo + hi) >> 1
		switch v := r.starts[mid]; {
		case n < v:
			hi = mid - 1
		case n > v:
			lo = mid + 1
		default:
			for mid+1 < len(r.readers) && r.starts[mid+1] == v {
				mid++
			}
			return mid
		}
	}
	return hi
}

func errDocRange(n int) error {
	return pkgerrors.New(pkgerrors.ErrDocRange, fmt.Sprintf("locating document %d", n), "")
}

// Readers returns the composed segment readers.
func (r *SegmentsReader) Readers() []*SegmentReader { return r.readers }

func (r *SegmentsReader) MaxDoc() int { return r.maxDoc }

func (r *SegmentsReader) NumDocs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numDocs < 0 {
		n := 0
		for _, sr := range r.readers {
			n += sr.NumDocs()
		}
		r.numDocs = n
	}
	return r.numDocs
}

func (r *SegmentsReader) HasDeletions() bool {
	for _, sr := range r.readers {
		if sr.HasDeletions() {
			return true
		}
	}
	return false
}

func (r *SegmentsReader) IsDeleted(n int) bool {
	i := r.ReaderIndex(n)
	if i < 0 {
		return false
	}
	return r.readers[i].IsDeleted(n - r.starts[i])
}

func (r *SegmentsReader) Document(n int) (*Document, error) {
	i := r.ReaderIndex(n)
	if i < 0 || n >= r.maxDoc {
		return nil, errDocRange(n)
	}
	return r.readers[i].Document(n - r.starts[i])
}

// Norms concatenates the norms of every segment. The result is computed
// once per field and shared.
func (r *SegmentsReader) Norms(field string) ([]byte, error) {
	r.normsMu.RLock()
	norms, ok := r.norms[field]
	r.normsMu.RUnlock()
	if ok {
		return norms, nil
	}
	v, err, _ := r.normsGroup.Do(field, func() (any, error) {
		buf := make([]byte, r.maxDoc)
		for i, sr := range r.readers {
			n, err := sr.Norms(field)
			if err != nil {
				return nil, err
			}
			copy(buf[r.starts[i]:r.starts[i+1]], n)
		}
		r.normsMu.Lock()
		r.norms[field] = buf
		r.normsMu.Unlock()
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *SegmentsReader) FieldNames(indexed bool) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, sr := range r.readers {
		for _, name := range sr.FieldNames(indexed) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (r *SegmentsReader) Terms() (TermEnum, error) {
	return newSegmentsTermEnum(r.readers, r.starts, nil)
}

func (r *SegmentsReader) TermsFrom(t Term) (TermEnum, error) {
	return newSegmentsTermEnum(r.readers, r.starts, &t)
}

func (r *SegmentsReader) DocFreq(t Term) (int, error) {
	total := 0
	for _, sr := range r.readers {
		n, err := sr.DocFreq(t)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (r *SegmentsReader) TermDocs() (TermDocs, error) {
	return newSegmentsTermDocs(r.readers, r.starts, false), nil
}

func (r *SegmentsReader) TermPositions() (TermPositions, error) {
	return newSegmentsTermDocs(r.readers, r.starts, true), nil
}

func (r *SegmentsReader) Delete(n int) error {
	stale, err := isStale(r.dir, r.version, r.logger)
	if err != nil {
		return err
	}
	if stale {
		if r.opts.Metrics != nil {
			r.opts.Metrics.StaleDeletesTotal.Inc()
		}
		return nil
	}
	return r.DoDelete(n)
}

func (r *SegmentsReader) DeleteTerm(t Term) (int, error) {
	stale, err := isStale(r.dir, r.version, r.logger)
	if err != nil {
		return 0, err
	}
	if stale {
		if r.opts.Metrics != nil {
			r.opts.Metrics.StaleDeletesTotal.Inc()
		}
		return 0, nil
	}
	return deleteTerm(r, t)
}

func (r *SegmentsReader) DoDelete(n int) error {
	i := r.ReaderIndex(n)
	if i < 0 || n >= r.maxDoc {
		return errDocRange(n)
	}
	if err := r.readers[i].DoDelete(n - r.starts[i]); err != nil {
		return err
	}
	r.mu.Lock()
	r.numDocs = -1
	r.mu.Unlock()
	return nil
}

// Close closes every segment reader, committing their deletions.
func (r *SegmentsReader) Close() error {
	var errs []error
	for _, sr := range r.readers {
		errs = append(errs, sr.Close())
	}
	return errors.Join(errs...)
}

// SegmentsTermEnum merges the term enums of several segments.
type SegmentsTermEnum struct {
	queue   segmentMergeQueue
	match   []*SegmentMergeInfo
	term    Term
	docFreq int
}

func newSegmentsTermEnum(readers []*SegmentReader, starts []int, from *Term) (*SegmentsTermEnum, error) {
	e := &SegmentsTermEnum{queue: make(segmentMergeQueue, 0, len(readers))}
	for i, sr := range readers {
		var te *SegmentTermEnum
		if from == nil {
			te = sr.termEnum()
		} else {
			var err error
			if te, err = sr.tis.TermsFrom(*from); err != nil {
				e.Close()
				return nil, err
			}
		}
		smi := newSegmentMergeInfo(starts[i], te, sr)
		ok := !smi.term.IsNull()
		if from == nil {
			var err error
			if ok, err = smi.next(); err != nil {
				smi.close()
				e.Close()
				return nil, err
			}
		}
		if ok {
			e.queue.push(smi)
		} else {
			smi.close()
		}
	}
	if from != nil && e.queue.Len() > 0 {
		if _, err := e.Next(); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *SegmentsTermEnum) Next() (bool, error) {
	if e.queue.Len() == 0 {
		e.term = Term{}
		e.docFreq = 0
		return false, nil
	}
	e.match = e.queue.popEqual(e.match)
	e.term = e.match[0].term
	e.docFreq = 0
	for _, smi := range e.match {
		e.docFreq += smi.termEnum.DocFreq()
		ok, err := smi.next()
		if err != nil {
			return false, err
		}
		if ok {
			e.queue.push(smi)
		} else {
			smi.close()
		}
	}
	return true, nil
}

func (e *SegmentsTermEnum) Term() Term { return e.term }

// DocFreq sums the document frequencies of the current term, deleted
// documents included.
func (e *SegmentsTermEnum) DocFreq() int { return e.docFreq }

func (e *SegmentsTermEnum) Close() error { return e.queue.close() }

// SegmentsTermDocs walks the postings of a term segment by segment.
type SegmentsTermDocs struct {
	readers   []*SegmentReader
	starts    []int
	positions bool

	term    Term
	base    int
	pointer int
	current TermPositions
	perSeg  []TermPositions
}

func newSegmentsTermDocs(readers []*SegmentReader, starts []int, positions bool) *SegmentsTermDocs {
	return &SegmentsTermDocs{
		readers:   readers,
		starts:    starts,
		positions: positions,
		perSeg:    make([]TermPositions, len(readers)),
	}
}

func (d *SegmentsTermDocs) Seek(t Term) error {
	d.term = t
	d.base = 0
	d.pointer = 0
	d.current = nil
	return nil
}

func (d *SegmentsTermDocs) segment(i int) (TermPositions, error) {
	td := d.perSeg[i]
	if td == nil {
		if d.positions {
			td = newSegmentTermPositions(d.readers[i])
		} else {
			td = segmentTermDocsOnly{d.readers[i].termDocs()}
		}
		d.perSeg[i] = td
	}
	if err := td.Seek(d.term); err != nil {
		return nil, err
	}
	return td, nil
}

// advance moves to the next segment; false when none is left.
func (d *SegmentsTermDocs) advance() (bool, error) {
	if d.pointer >= len(d.readers) {
		d.current = nil
		return false, nil
	}
	td, err := d.segment(d.pointer)
	if err != nil {
		return false, err
	}
	d.base = d.starts[d.pointer]
	d.current = td
	d.pointer++
	return true, nil
}

func (d *SegmentsTermDocs) Next() (bool, error) {
	for {
		if d.current != nil {
			ok, err := d.current.Next()
			if err != nil || ok {
				return ok, err
			}
		}
		more, err := d.advance()
		if err != nil || !more {
			return false, err
		}
	}
}

func (d *SegmentsTermDocs) Doc() int { return d.base + d.current.Doc() }

func (d *SegmentsTermDocs) Freq() int { return d.current.Freq() }

func (d *SegmentsTermDocs) NextPosition() (int, error) { return d.current.NextPosition() }

func (d *SegmentsTermDocs) Read(docs, freqs []int) (int, error) {
	for {
		if d.current == nil {
			more, err := d.advance()
			if err != nil || !more {
				return 0, err
			}
		}
		n, err := d.current.Read(docs, freqs)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			for i := 0; i < n; i++ {
				docs[i] += d.base
			}
			return n, nil
		}
		d.current = nil
	}
}

func (d *SegmentsTermDocs) SkipTo(target int) (bool, error) {
	for {
		ok, err := d.Next()
		if err != nil || !ok {
			return false, err
		}
		if d.Doc() >= target {
			return true, nil
		}
	}
}

func (d *SegmentsTermDocs) Close() error {
	var errs []error
	for _, td := range d.perSeg {
		if td != nil {
			errs = append(errs, td.Close())
		}
	}
	return errors.Join(errs...)
}

// segmentTermDocsOnly adapts SegmentTermDocs to TermPositions for
// SegmentsTermDocs created without positions.
type segmentTermDocsOnly struct {
	*SegmentTermDocs
}

func (segmentTermDocsOnly) NextPosition() (int, error) {
	return 0, errors.New("term positions not requested")
}
