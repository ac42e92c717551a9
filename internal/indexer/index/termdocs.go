package index

import (
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

// SegmentTermDocs decodes the .frq postings of one term, skipping deleted
// documents.
type SegmentTermDocs struct {
	reader *SegmentReader
	freqIn store.IndexInput
	df     int
	count  int
	doc    int
	freq   int
}

func newSegmentTermDocs(r *SegmentReader) *SegmentTermDocs {
	return &SegmentTermDocs{reader: r, freqIn: r.freq.Clone()}
}

func (d *SegmentTermDocs) Seek(t Term) error {
	ti, err := d.reader.tis.Get(t)
	if err != nil {
		return err
	}
	return d.seekInfo(ti)
}

// SeekEnum positions on the current term of e, using its TermInfo
// directly when e enumerates this reader's segment.
func (d *SegmentTermDocs) SeekEnum(e TermEnum) error {
	if se, ok := e.(*SegmentTermEnum); ok && se.fieldInfos == d.reader.fieldInfos {
		ti := se.TermInfo()
		return d.seekInfo(&ti)
	}
	return d.Seek(e.Term())
}

func (d *SegmentTermDocs) seekInfo(ti *TermInfo) error {
	d.count = 0
	d.doc = 0
	d.freq = 0
	if ti == nil {
		d.df = 0
		return nil
	}
	d.df = int(ti.DocFreq)
	return d.freqIn.Seek(int64(ti.FreqPointer))
}

func (d *SegmentTermDocs) Doc() int { return d.doc }

func (d *SegmentTermDocs) Freq() int { return d.freq }

func (d *SegmentTermDocs) Next() (bool, error) {
	return d.next(nil)
}

// next decodes postings until a live document; skipped is called with the
// frequency of every deleted document passed over.
func (d *SegmentTermDocs) next(skipped func(freq int) error) (bool, error) {
	for {
		if d.count == d.df {
			return false, nil
		}
		code, err := store.ReadVInt(d.freqIn)
		if err != nil {
			return false, pkgerrors.Corruptf(d.freqIn.Name(), "doc code: %v", err)
		}
		d.doc += int(code >> 1)
		if code&1 != 0 {
			d.freq = 1
		} else {
			f, err := store.ReadVInt(d.freqIn)
			if err != nil {
				return false, pkgerrors.Corruptf(d.freqIn.Name(), "freq: %v", err)
			}
			d.freq = int(f)
		}
		d.count++
		if !d.reader.IsDeleted(d.doc) {
			return true, nil
		}
		if skipped != nil {
			if err := skipped(d.freq); err != nil {
				return false, err
			}
		}
	}
}

func (d *SegmentTermDocs) Read(docs, freqs []int) (int, error) {
	n := min(len(docs), len(freqs))
	i := 0
	for i < n {
		ok, err := d.Next()
		if err != nil {
			return i, err
		}
		if !ok {
			break
		}
		docs[i] = d.doc
		freqs[i] = d.freq
		i++
	}
	return i, nil
}

// SkipTo scans forward linearly.
func (d *SegmentTermDocs) SkipTo(target int) (bool, error) {
	for {
		ok, err := d.Next()
		if err != nil || !ok {
			return false, err
		}
		if d.doc >= target {
			return true, nil
		}
	}
}

func (d *SegmentTermDocs) Close() error { return d.freqIn.Close() }

// SegmentTermPositions decodes .frq and .prx together.
type SegmentTermPositions struct {
	*SegmentTermDocs
	proxIn    store.IndexInput
	proxCount int
	position  int
}

func newSegmentTermPositions(r *SegmentReader) *SegmentTermPositions {
	return &SegmentTermPositions{
		SegmentTermDocs: newSegmentTermDocs(r),
		proxIn:          r.prox.Clone(),
	}
}

func (p *SegmentTermPositions) Seek(t Term) error {
	ti, err := p.reader.tis.Get(t)
	if err != nil {
		return err
	}
	return p.seekInfo(ti)
}

func (p *SegmentTermPositions) SeekEnum(e TermEnum) error {
	if se, ok := e.(*SegmentTermEnum); ok && se.fieldInfos == p.reader.fieldInfos {
		ti := se.TermInfo()
		return p.seekInfo(&ti)
	}
	return p.Seek(e.Term())
}

func (p *SegmentTermPositions) seekInfo(ti *TermInfo) error {
	if err := p.SegmentTermDocs.seekInfo(ti); err != nil {
		return err
	}
	p.proxCount = 0
	if ti == nil {
		return nil
	}
	return p.proxIn.Seek(int64(ti.ProxPointer))
}

func (p *SegmentTermPositions) skipPositions(n int) error {
	for ; n > 0; n-- {
		if _, err := store.ReadVInt(p.proxIn); err != nil {
			return pkgerrors.Corruptf(p.proxIn.Name(), "position: %v", err)
		}
	}
	return nil
}

func (p *SegmentTermPositions) Next() (bool, error) {
	if err := p.skipPositions(p.proxCount); err != nil {
		return false, err
	}
	p.proxCount = 0
	ok, err := p.next(p.skipPositions)
	if err != nil || !ok {
		return false, err
	}
	p.proxCount = p.freq
	p.position = 0
	return true, nil
}

func (p *SegmentTermPositions) NextPosition() (int, error) {
	if p.proxCount <= 0 {
		return 0, pkgerrors.Corruptf(p.proxIn.Name(), "read past the positions of document %d", p.doc)
	}
	delta, err := store.ReadVInt(p.proxIn)
	if err != nil {
		return 0, pkgerrors.Corruptf(p.proxIn.Name(), "position: %v", err)
	}
	p.proxCount--
	p.position += int(delta)
	return p.position, nil
}

func (p *SegmentTermPositions) Read(docs, freqs []int) (int, error) {
	n := min(len(docs), len(freqs))
	i := 0
	for i < n {
		ok, err := p.Next()
		if err != nil {
			return i, err
		}
		if !ok {
			break
		}
		docs[i] = p.doc
		freqs[i] = p.freq
		i++
	}
	return i, nil
}

func (p *SegmentTermPositions) SkipTo(target int) (bool, error) {
	for {
		ok, err := p.Next()
		if err != nil || !ok {
			return false, err
		}
		if p.doc >= target {
			return true, nil
		}
	}
}

func (p *SegmentTermPositions) Close() error {
	p.SegmentTermDocs.Close()
	return p.proxIn.Close()
}
