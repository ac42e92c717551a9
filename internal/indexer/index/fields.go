package index

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

const fieldBitTokenized byte = 1

// FieldsWriter appends the stored fields of documents to a segment's .fdt
// file and their offsets to .fdx.
type FieldsWriter struct {
	fieldInfos *FieldInfos
	fdt        store.IndexOutput
	fdx        store.IndexOutput
}

func NewFieldsWriter(dir store.Directory, segment string, fi *FieldInfos) (*FieldsWriter, error) {
	fdt, err := dir.CreateOutput(segment + ".fdt")
	if err != nil {
		return nil, err
	}
	fdx, err := dir.CreateOutput(segment + ".fdx")
	if err != nil {
		fdt.Close()
		return nil, err
	}
	return &FieldsWriter{fieldInfos: fi, fdt: fdt, fdx: fdx}, nil
}

// AddDocument writes the stored fields of doc as the next document.
func (w *FieldsWriter) AddDocument(doc *Document) error {
	if err := store.WriteUint32(w.fdx, uint32(w.fdt.FilePointer())); err != nil {
		return fmt.Errorf("writing %s: %w", w.fdx.Name(), err)
	}
	stored := 0
	for _, f := range doc.Fields() {
		if f.Stored {
			stored++
		}
	}
	if err := store.WriteUint32(w.fdt, uint32(stored)); err != nil {
		return fmt.Errorf("writing %s: %w", w.fdt.Name(), err)
	}
	for _, f := range doc.Fields() {
		if !f.Stored {
			continue
		}
		num, ok := w.fieldInfos.FieldNumber(f.Name)
		if !ok {
			return fmt.Errorf("storing field %q: %w", f.Name, pkgerrors.ErrFieldNumber)
		}
		var bits byte
		if f.Tokenized {
			bits |= fieldBitTokenized
		}
		if err := store.WriteUint32(w.fdt, uint32(num)); err != nil {
			return fmt.Errorf("writing %s: %w", w.fdt.Name(), err)
		}
		if err := w.fdt.WriteByte(bits); err != nil {
			return fmt.Errorf("writing %s: %w", w.fdt.Name(), err)
		}
		if err := store.WriteString(w.fdt, f.Value()); err != nil {
			return fmt.Errorf("writing %s: %w", w.fdt.Name(), err)
		}
	}
	return nil
}

func (w *FieldsWriter) Close() error {
	return errors.Join(w.fdt.Close(), w.fdx.Close())
}

// FieldsReader reads stored documents back. It is safe for concurrent use.
type FieldsReader struct {
	mu         sync.Mutex
	fieldInfos *FieldInfos
	fdt        store.IndexInput
	fdx        store.IndexInput
	size       int
}

func OpenFieldsReader(dir store.Directory, segment string, fi *FieldInfos) (*FieldsReader, error) {
	fdt, err := dir.OpenInput(segment + ".fdt")
	if err != nil {
		return nil, err
	}
	fdx, err := dir.OpenInput(segment + ".fdx")
	if err != nil {
		fdt.Close()
		return nil, err
	}
	return &FieldsReader{
		fieldInfos: fi,
		fdt:        fdt,
		fdx:        fdx,
		size:       int(fdx.Length() / 4),
	}, nil
}

// Size returns the number of documents in the segment.
func (r *FieldsReader) Size() int { return r.size }

// Doc returns the stored fields of document n.
func (r *FieldsReader) Doc(n int) (*Document, error) {
	if n < 0 || n >= r.size {
		return nil, pkgerrors.New(pkgerrors.ErrDocRange, fmt.Sprintf("reading document %d", n), r.fdx.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fdx.Seek(int64(n) * 4); err != nil {
		return nil, err
	}
	offset, err := store.ReadUint32(r.fdx)
	if err != nil {
		return nil, pkgerrors.Corruptf(r.fdx.Name(), "offset of document %d: %v", n, err)
	}
	if err := r.fdt.Seek(int64(offset)); err != nil {
		return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d offset %d: %v", n, offset, err)
	}
	count, err := store.ReadUint32(r.fdt)
	if err != nil {
		return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d field count: %v", n, err)
	}
	if count > MaxFieldCount {
		return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d claims %d fields", n, count)
	}
	doc := NewDocument()
	for i := uint32(0); i < count; i++ {
		num, err := store.ReadUint32(r.fdt)
		if err != nil {
			return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d field number: %v", n, err)
		}
		info := r.fieldInfos.FieldInfo(int(num))
		if info == nil {
			return nil, pkgerrors.New(pkgerrors.ErrFieldNumber, fmt.Sprintf("reading document %d field %d", n, num), r.fdt.Name())
		}
		bits, err := r.fdt.ReadByte()
		if err != nil {
			return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d field bits: %v", n, err)
		}
		value, err := store.ReadString(r.fdt)
		if err != nil {
			return nil, pkgerrors.Corruptf(r.fdt.Name(), "document %d field value: %v", n, err)
		}
		doc.Add(NewField(info.Name, value, true, info.IsIndexed, bits&fieldBitTokenized != 0))
	}
	return doc, nil
}

func (r *FieldsReader) Close() error {
	return errors.Join(r.fdt.Close(), r.fdx.Close())
}
