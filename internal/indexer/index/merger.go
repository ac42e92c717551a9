package index

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

var segmentExtensions = []string{".fnm", ".fdx", ".fdt", ".tii", ".tis", ".frq", ".prx", ".nrm"}

// SegmentFiles lists the files making up segment name, excluding its
// optional .del file.
func SegmentFiles(name string) []string {
	files := make([]string, len(segmentExtensions))
	for i, ext := range segmentExtensions {
		files[i] = name + ext
	}
	return files
}

// SegmentMerger writes the live documents of several segments into one
// new segment. Documents keep their relative order.
type SegmentMerger struct {
	dir     store.Directory
	segment string
	logger  *slog.Logger
	readers []*SegmentReader

	fieldInfos *FieldInfos
	freq       store.IndexOutput
	prox       store.IndexOutput
	tis        *TermInfosWriter
}

func NewSegmentMerger(dir store.Directory, segment string, l *slog.Logger) *SegmentMerger {
	if l == nil {
		l = slog.Default()
	}
	return &SegmentMerger{dir: dir, segment: segment, logger: l.With("segment", segment)}
}

// Add appends a source segment; sources are merged in the order added.
func (m *SegmentMerger) Add(r *SegmentReader) { m.readers = append(m.readers, r) }

// Merge writes the new segment and returns its document count.
func (m *SegmentMerger) Merge() (int, error) {
	count, err := m.mergeFields()
	if err != nil {
		return 0, fmt.Errorf("merging fields into %s: %w", m.segment, err)
	}
	if err := m.mergeTerms(); err != nil {
		return 0, fmt.Errorf("merging terms into %s: %w", m.segment, err)
	}
	if err := m.mergeNorms(); err != nil {
		return 0, fmt.Errorf("merging norms into %s: %w", m.segment, err)
	}
	m.logger.Debug("segments merged", "sources", len(m.readers), "docs", count)
	return count, nil
}

// CloseReaders releases the sources without committing their deletions.
func (m *SegmentMerger) CloseReaders() error {
	var errs []error
	for _, r := range m.readers {
		errs = append(errs, r.CloseDiscard())
	}
	return errors.Join(errs...)
}

func (m *SegmentMerger) mergeFields() (count int, err error) {
	m.fieldInfos = NewFieldInfos()
	for _, r := range m.readers {
		m.fieldInfos.AddAll(r.FieldNames(true), true)
		m.fieldInfos.AddAll(r.FieldNames(false), false)
	}
	if err := m.fieldInfos.Write(m.dir, m.segment+".fnm"); err != nil {
		return 0, err
	}

	fw, err := NewFieldsWriter(m.dir, m.segment, m.fieldInfos)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := fw.Close(); err == nil {
			err = cerr
		}
	}()
	for _, r := range m.readers {
		for i := 0; i < r.MaxDoc(); i++ {
			if r.IsDeleted(i) {
				continue
			}
			doc, err := r.Document(i)
			if err != nil {
				return count, err
			}
			if err := fw.AddDocument(doc); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (m *SegmentMerger) mergeTerms() (err error) {
	if m.freq, err = m.dir.CreateOutput(m.segment + ".frq"); err != nil {
		return err
	}
	if m.prox, err = m.dir.CreateOutput(m.segment + ".prx"); err != nil {
		m.freq.Close()
		return err
	}
	if m.tis, err = NewTermInfosWriter(m.dir, m.segment, m.fieldInfos); err != nil {
		m.freq.Close()
		m.prox.Close()
		return err
	}
	defer func() {
		if cerr := errors.Join(m.freq.Close(), m.prox.Close(), m.tis.Close()); err == nil {
			err = cerr
		}
	}()

	queue := make(segmentMergeQueue, 0, len(m.readers))
	defer queue.close()
	base := 0
	for _, r := range m.readers {
		smi := newSegmentMergeInfo(base, r.termEnum(), r)
		base += r.NumDocs()
		ok, err := smi.next()
		if err != nil {
			smi.close()
			return err
		}
		if ok {
			queue.push(smi)
		} else {
			smi.close()
		}
	}

	var match []*SegmentMergeInfo
	for queue.Len() > 0 {
		match = queue.popEqual(match)
		if err := m.mergeTermInfo(match); err != nil {
			for _, smi := range match {
				smi.close()
			}
			return err
		}
		for i, smi := range match {
			ok, err := smi.next()
			if err != nil {
				for _, rest := range match[i:] {
					rest.close()
				}
				return err
			}
			if ok {
				queue.push(smi)
			} else {
				smi.close()
			}
		}
	}
	return nil
}

// mergeTermInfo writes the combined postings of one term. A term with no
// live document is dropped.
func (m *SegmentMerger) mergeTermInfo(match []*SegmentMergeInfo) error {
	ti := TermInfo{
		FreqPointer: uint64(m.freq.FilePointer()),
		ProxPointer: uint64(m.prox.FilePointer()),
	}
	df, err := m.appendPostings(match)
	if err != nil {
		return err
	}
	if df == 0 {
		return nil
	}
	ti.DocFreq = uint32(df)
	term := match[0].term
	if !m.tis.Add(term, ti) {
		return pkgerrors.New(pkgerrors.ErrOutOfOrder, "adding term "+term.String(), m.segment+".tis")
	}
	return nil
}

func (m *SegmentMerger) appendPostings(match []*SegmentMergeInfo) (int, error) {
	lastDoc := 0
	df := 0
	for _, smi := range match {
		postings := smi.Postings()
		docMap := smi.DocMap()
		if err := postings.SeekEnum(smi.termEnum); err != nil {
			return 0, err
		}
		for {
			ok, err := postings.Next()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			doc := postings.Doc()
			if docMap != nil {
				doc = docMap[doc]
			}
			doc += smi.base
			if df > 0 && doc <= lastDoc {
				return 0, pkgerrors.New(pkgerrors.ErrOutOfOrder, fmt.Sprintf("doc %d after %d for %s", doc, lastDoc, smi.term), m.segment+".frq")
			}
			if err := m.writeDoc(postings, doc-lastDoc); err != nil {
				return 0, err
			}
			lastDoc = doc
			df++
		}
	}
	return df, nil
}

func (m *SegmentMerger) writeDoc(postings *SegmentTermPositions, delta int) error {
	freq := postings.Freq()
	code := uint32(delta) << 1
	var err error
	if freq == 1 {
		err = store.WriteVInt(m.freq, code|1)
	} else {
		err = errors.Join(store.WriteVInt(m.freq, code), store.WriteVInt(m.freq, uint32(freq)))
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", m.freq.Name(), err)
	}
	last := 0
	for j := 0; j < freq; j++ {
		pos, err := postings.NextPosition()
		if err != nil {
			return err
		}
		if err := store.WriteVInt(m.prox, uint32(pos-last)); err != nil {
			return fmt.Errorf("writing %s: %w", m.prox.Name(), err)
		}
		last = pos
	}
	return nil
}

func (m *SegmentMerger) mergeNorms() (err error) {
	out, err := m.dir.CreateOutput(m.segment + ".nrm")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	for i := 0; i < m.fieldInfos.Size(); i++ {
		name := m.fieldInfos.FieldName(i)
		for _, r := range m.readers {
			norms, err := r.Norms(name)
			if err != nil {
				return err
			}
			for j := 0; j < r.MaxDoc(); j++ {
				if r.IsDeleted(j) {
					continue
				}
				var b byte
				if norms != nil {
					b = norms[j]
				}
				if err := out.WriteByte(b); err != nil {
					return fmt.Errorf("writing %s: %w", out.Name(), err)
				}
			}
		}
	}
	return nil
}
