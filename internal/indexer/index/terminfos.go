package index

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

// IndexInterval is the number of .tis records between .tii entries.
const IndexInterval = 128

// termStream is the per-file state of a TermInfosWriter.
type termStream struct {
	out          store.IndexOutput
	size         uint32
	lastText     []byte
	lastTerm     Term
	lastTI       TermInfo
	lastIndexPtr int64
}

// TermInfosWriter writes a segment's term dictionary: every term to .tis,
// and every IndexInterval-th term with its .tis offset to .tii.
type TermInfosWriter struct {
	fieldInfos *FieldInfos
	tis        termStream
	tii        termStream
	err        error
}

func NewTermInfosWriter(dir store.Directory, segment string, fi *FieldInfos) (*TermInfosWriter, error) {
	tis, err := dir.CreateOutput(segment + ".tis")
	if err != nil {
		return nil, err
	}
	tii, err := dir.CreateOutput(segment + ".tii")
	if err != nil {
		tis.Close()
		return nil, err
	}
	w := &TermInfosWriter{
		fieldInfos: fi,
		tis:        termStream{out: tis},
		tii:        termStream{out: tii},
	}
	// the count is patched on Close
	w.err = errors.Join(store.WriteUint32(tis, 0), store.WriteUint32(tii, 0))
	return w, nil
}

// Add appends term with ti. It returns false, writing nothing, when term
// does not sort after the previous term or a pointer moves backwards. I/O
// failures also make Add return false; Close reports them.
func (w *TermInfosWriter) Add(term Term, ti TermInfo) bool {
	if w.err != nil {
		return false
	}
	if w.tis.size > 0 && term.Compare(w.tis.lastTerm) <= 0 {
		return false
	}
	if ti.FreqPointer < w.tis.lastTI.FreqPointer || ti.ProxPointer < w.tis.lastTI.ProxPointer {
		return false
	}
	if w.tis.size%IndexInterval == 0 {
		if err := w.writeRecord(&w.tii, w.tis.lastTerm, w.tis.lastTI, true); err != nil {
			w.err = err
			return false
		}
	}
	if err := w.writeRecord(&w.tis, term, ti, false); err != nil {
		w.err = err
		return false
	}
	return true
}

func (w *TermInfosWriter) writeRecord(s *termStream, term Term, ti TermInfo, isIndex bool) error {
	num, ok := w.fieldInfos.FieldNumber(term.Field)
	if !ok {
		return fmt.Errorf("adding term %s: %w", term, pkgerrors.ErrFieldNumber)
	}
	text := []byte(term.Text)
	shared := sharedPrefix(s.lastText, text)
	err := errors.Join(
		store.WriteVInt(s.out, uint32(shared)),
		store.WriteVInt(s.out, uint32(len(text)-shared)),
		s.out.WriteBytes(text[shared:]),
		store.WriteVInt(s.out, uint32(num)),
		store.WriteVInt(s.out, ti.DocFreq),
		store.WriteVLong(s.out, ti.FreqPointer-s.lastTI.FreqPointer),
		store.WriteVLong(s.out, ti.ProxPointer-s.lastTI.ProxPointer),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", s.out.Name(), err)
	}
	if isIndex {
		ptr := w.tis.out.FilePointer()
		if err := store.WriteVLong(s.out, uint64(ptr-s.lastIndexPtr)); err != nil {
			return fmt.Errorf("writing %s: %w", s.out.Name(), err)
		}
		s.lastIndexPtr = ptr
	}
	s.lastText = text
	s.lastTerm = term
	s.lastTI = ti
	s.size++
	return nil
}

func sharedPrefix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Size returns the number of terms added.
func (w *TermInfosWriter) Size() int { return int(w.tis.size) }

// Close patches the term counts into both headers and closes the files.
func (w *TermInfosWriter) Close() error {
	err := w.err
	for _, s := range []*termStream{&w.tis, &w.tii} {
		if err == nil {
			err = s.out.Seek(0)
		}
		if err == nil {
			err = store.WriteUint32(s.out, s.size)
		}
		if cerr := s.out.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("closing term dictionary: %w", err)
	}
	return nil
}

// SegmentTermEnum walks the records of a .tis or .tii file in order.
// A fresh enum is positioned before the first term.
type SegmentTermEnum struct {
	in         store.IndexInput
	fieldInfos *FieldInfos
	isIndex    bool
	size       int64
	position   int64

	field    int
	text     []byte
	term     Term
	termSet  bool
	prev     Term
	ti       TermInfo
	indexPtr int64
}

func newSegmentTermEnum(in store.IndexInput, fi *FieldInfos, isIndex bool) (*SegmentTermEnum, error) {
	size, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(in.Name(), "term count: %v", err)
	}
	return &SegmentTermEnum{
		in:         in,
		fieldInfos: fi,
		isIndex:    isIndex,
		size:       int64(size),
		position:   -1,
		field:      -1,
	}, nil
}

// Next advances to the following record. It returns false at the end of
// the dictionary.
func (e *SegmentTermEnum) Next() (bool, error) {
	if e.position >= e.size-1 {
		e.prev = e.Term()
		e.field = -1
		e.text = e.text[:0]
		e.term, e.termSet = Term{}, true
		e.position = e.size
		return false, nil
	}
	e.prev = e.Term()

	name := e.in.Name()
	shared, err := store.ReadVInt(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d prefix: %v", e.position+1, err)
	}
	suffix, err := store.ReadVInt(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d suffix length: %v", e.position+1, err)
	}
	if int(shared) > len(e.text) || int64(suffix) > e.in.Length()-e.in.FilePointer() {
		return false, pkgerrors.Corruptf(name, "term %d prefix %d suffix %d out of range", e.position+1, shared, suffix)
	}
	e.text = append(e.text[:shared], make([]byte, suffix)...)
	if err := e.in.ReadBytes(e.text[shared:]); err != nil {
		return false, pkgerrors.Corruptf(name, "term %d text: %v", e.position+1, err)
	}
	field, err := store.ReadVInt(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d field: %v", e.position+1, err)
	}
	if int(field) >= e.fieldInfos.Size() {
		return false, pkgerrors.New(pkgerrors.ErrFieldNumber, fmt.Sprintf("reading term %d field %d", e.position+1, field), name)
	}
	docFreq, err := store.ReadVInt(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d doc freq: %v", e.position+1, err)
	}
	freqDelta, err := store.ReadVLong(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d freq pointer: %v", e.position+1, err)
	}
	proxDelta, err := store.ReadVLong(e.in)
	if err != nil {
		return false, pkgerrors.Corruptf(name, "term %d prox pointer: %v", e.position+1, err)
	}
	if e.isIndex {
		indexDelta, err := store.ReadVLong(e.in)
		if err != nil {
			return false, pkgerrors.Corruptf(name, "term %d index pointer: %v", e.position+1, err)
		}
		e.indexPtr += int64(indexDelta)
	}
	e.field = int(field)
	e.ti.DocFreq = docFreq
	e.ti.FreqPointer += freqDelta
	e.ti.ProxPointer += proxDelta
	e.termSet = false
	e.position++
	return true, nil
}

// Term returns the current term, or the zero Term when the enum is not
// positioned on one.
func (e *SegmentTermEnum) Term() Term {
	if !e.termSet {
		if e.field < 0 {
			e.term = Term{}
		} else {
			e.term = Term{Field: e.fieldInfos.FieldName(e.field), Text: string(e.text)}
		}
		e.termSet = true
	}
	return e.term
}

func (e *SegmentTermEnum) TermInfo() TermInfo { return e.ti }

func (e *SegmentTermEnum) DocFreq() int { return int(e.ti.DocFreq) }

// Position is the ordinal of the current term; -1 before the first.
func (e *SegmentTermEnum) Position() int64 { return e.position }

func (e *SegmentTermEnum) Size() int64 { return e.size }

// Seek repositions the enum on a record known from the term index.
func (e *SegmentTermEnum) Seek(pointer, position int64, term Term, ti TermInfo) error {
	if err := e.in.Seek(pointer); err != nil {
		return err
	}
	e.position = position
	e.prev = Term{}
	e.text = append(e.text[:0], term.Text...)
	e.field = -1
	if !term.IsNull() {
		num, ok := e.fieldInfos.FieldNumber(term.Field)
		if !ok {
			return fmt.Errorf("seeking to %s: %w", term, pkgerrors.ErrFieldNumber)
		}
		e.field = num
	}
	e.termSet = false
	e.ti = ti
	return nil
}

// LowerBound advances until the current term is not less than target or
// the dictionary ends. Records of a field that sorts before target's field
// are skipped without comparing their text.
func (e *SegmentTermEnum) LowerBound(target Term) error {
	text := []byte(target.Text)
	lastField := -2
	fieldCmp := 0
	for {
		if e.field >= 0 {
			if e.field != lastField {
				lastField = e.field
				fieldCmp = strings.Compare(e.fieldInfos.FieldName(e.field), target.Field)
			}
			if fieldCmp > 0 || (fieldCmp == 0 && bytes.Compare(e.text, text) >= 0) {
				return nil
			}
		} else if e.position >= e.size {
			return nil
		}
		ok, err := e.Next()
		if err != nil || !ok {
			return err
		}
	}
}

// Clone returns an independent enum at the same position.
func (e *SegmentTermEnum) Clone() *SegmentTermEnum {
	c := *e
	c.in = e.in.Clone()
	c.text = append([]byte(nil), e.text...)
	return &c
}

func (e *SegmentTermEnum) Close() error { return e.in.Close() }

// termIndex is the decoded .tii of a segment.
type termIndex struct {
	terms    []Term
	infos    []TermInfo
	pointers []int64
}

func readTermIndex(dir store.Directory, segment string, fi *FieldInfos) (*termIndex, error) {
	in, err := dir.OpenInput(segment + ".tii")
	if err != nil {
		return nil, err
	}
	e, err := newSegmentTermEnum(in, fi, true)
	if err != nil {
		in.Close()
		return nil, err
	}
	defer e.Close()

	idx := &termIndex{
		terms:    make([]Term, 0, e.size),
		infos:    make([]TermInfo, 0, e.size),
		pointers: make([]int64, 0, e.size),
	}
	for {
		ok, err := e.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		idx.terms = append(idx.terms, e.Term())
		idx.infos = append(idx.infos, e.ti)
		idx.pointers = append(idx.pointers, e.indexPtr)
	}
	return idx, nil
}

// indexOffset returns the greatest i with terms[i] <= t, or -1.
func indexOffset(terms []Term, t Term) int {
	return sort.Search(len(terms), func(i int) bool {
		return terms[i].Compare(t) > 0
	}) - 1
}

// TermInfosReader looks terms up in a segment's dictionary. The sparse
// index comes from the segment cache; the full dictionary is scanned from
// .tis. It is safe for concurrent use.
type TermInfosReader struct {
	mu    sync.Mutex
	orig  *SegmentTermEnum
	enum  *SegmentTermEnum
	index *termIndex
}

func OpenTermInfosReader(dir store.Directory, segment string, fi *FieldInfos, idx *termIndex) (*TermInfosReader, error) {
	in, err := dir.OpenInput(segment + ".tis")
	if err != nil {
		return nil, err
	}
	orig, err := newSegmentTermEnum(in, fi, false)
	if err != nil {
		in.Close()
		return nil, err
	}
	return &TermInfosReader{orig: orig, enum: orig.Clone(), index: idx}, nil
}

// Size returns the number of terms in the segment.
func (r *TermInfosReader) Size() int64 { return r.orig.size }

// GetIndexOffset returns the greatest index entry not after t, or -1.
func (r *TermInfosReader) GetIndexOffset(t Term) int {
	return indexOffset(r.index.terms, t)
}

func (r *TermInfosReader) seekIndex(offset int) error {
	return r.enum.Seek(
		r.index.pointers[offset],
		int64(offset)*IndexInterval-1,
		r.index.terms[offset],
		r.index.infos[offset],
	)
}

// Get returns the TermInfo of t, or nil when t is absent.
func (r *TermInfosReader) Get(t Term) (*TermInfo, error) {
	if r.orig.size == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(t)
}

// get is Get with r.mu held.
func (r *TermInfosReader) get(t Term) (*TermInfo, error) {
	// sequential access: keep scanning when t is between the current term
	// and the next index entry
	e := r.enum
	if cur := e.Term(); !cur.IsNull() && ((!e.prev.IsNull() && t.Compare(e.prev) > 0) || t.Compare(cur) >= 0) {
		next := int(e.position/IndexInterval) + 1
		if next >= len(r.index.terms) || t.Compare(r.index.terms[next]) < 0 {
			return r.scanTo(t)
		}
	}
	off := r.GetIndexOffset(t)
	if off < 0 {
		return nil, nil
	}
	if err := r.seekIndex(off); err != nil {
		return nil, err
	}
	return r.scanTo(t)
}

func (r *TermInfosReader) scanTo(t Term) (*TermInfo, error) {
	if err := r.enum.LowerBound(t); err != nil {
		return nil, err
	}
	if cur := r.enum.Term(); !cur.IsNull() && cur.Compare(t) == 0 {
		ti := r.enum.ti
		return &ti, nil
	}
	return nil, nil
}

// GetTerm returns the term at position, or false when out of range.
func (r *TermInfosReader) GetTerm(position int64) (Term, bool, error) {
	if position < 0 || position >= r.orig.size {
		return Term{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.enum
	if e.Term().IsNull() || position < e.position || position >= e.position+IndexInterval {
		if err := r.seekIndex(int(position / IndexInterval)); err != nil {
			return Term{}, false, err
		}
	}
	for e.position < position {
		ok, err := e.Next()
		if err != nil {
			return Term{}, false, err
		}
		if !ok {
			return Term{}, false, nil
		}
	}
	return e.Term(), true, nil
}

// GetPosition returns the ordinal of t, or -1 when t is absent.
func (r *TermInfosReader) GetPosition(t Term) (int64, error) {
	if r.orig.size == 0 {
		return -1, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	off := r.GetIndexOffset(t)
	if off < 0 {
		return -1, nil
	}
	if err := r.seekIndex(off); err != nil {
		return -1, err
	}
	if err := r.enum.LowerBound(t); err != nil {
		return -1, err
	}
	if cur := r.enum.Term(); !cur.IsNull() && cur.Compare(t) == 0 {
		return r.enum.position, nil
	}
	return -1, nil
}

// Terms returns an enum positioned before the first term.
func (r *TermInfosReader) Terms() *SegmentTermEnum {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orig.Clone()
}

// TermsFrom returns an enum positioned on the first term not less than t;
// its Term is zero when no such term exists.
func (r *TermInfosReader) TermsFrom(t Term) (*SegmentTermEnum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orig.size == 0 {
		return r.orig.Clone(), nil
	}
	if _, err := r.get(t); err != nil {
		return nil, err
	}
	return r.enum.Clone(), nil
}

func (r *TermInfosReader) Close() error {
	return r.orig.Close()
}
