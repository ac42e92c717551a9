package store

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

var ramDirSeq atomic.Int64

// RAMDirectory keeps every file in memory. It is used for freshly added
// single-document segments before they are merged into durable storage,
// and for tests.
type RAMDirectory struct {
	id    string
	mu    sync.RWMutex
	files map[string]*ramFile
}

type ramFile struct {
	mu   sync.RWMutex
	data []byte
}

// NewRAMDirectory returns an empty in-memory directory.
func NewRAMDirectory() *RAMDirectory {
	return &RAMDirectory{
		id:    fmt.Sprintf("ram:%d", ramDirSeq.Add(1)),
		files: make(map[string]*ramFile),
	}
}

func (d *RAMDirectory) ID() string { return d.id }

func (d *RAMDirectory) file(name string) (*ramFile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.files[name]
	return f, ok
}

func (d *RAMDirectory) OpenInput(name string) (IndexInput, error) {
	f, ok := d.file(name)
	if !ok {
		return nil, fmt.Errorf("opening %s/%s: %w", d.id, name, ErrNotExist)
	}
	f.mu.RLock()
	data := f.data
	f.mu.RUnlock()
	return &ramInput{data: data, name: name}, nil
}

func (d *RAMDirectory) CreateOutput(name string) (IndexOutput, error) {
	f := &ramFile{}
	d.mu.Lock()
	d.files[name] = f
	d.mu.Unlock()
	return &ramOutput{file: f, name: name}, nil
}

func (d *RAMDirectory) Exists(name string) bool {
	_, ok := d.file(name)
	return ok
}

func (d *RAMDirectory) FileLength(name string) (int64, error) {
	f, ok := d.file(name)
	if !ok {
		return 0, fmt.Errorf("stat %s/%s: %w", d.id, name, ErrNotExist)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data)), nil
}

func (d *RAMDirectory) Delete(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.files[name]; !ok {
		return fmt.Errorf("deleting %s/%s: %w", d.id, name, ErrNotExist)
	}
	delete(d.files, name)
	return nil
}

func (d *RAMDirectory) Rename(from, to string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[from]
	if !ok {
		return fmt.Errorf("renaming %s/%s: %w", d.id, from, ErrNotExist)
	}
	delete(d.files, from)
	d.files[to] = f
	return nil
}

func (d *RAMDirectory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.files))
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SizeInBytes sums the length of all files.
func (d *RAMDirectory) SizeInBytes() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var total int64
	for _, f := range d.files {
		f.mu.RLock()
		total += int64(len(f.data))
		f.mu.RUnlock()
	}
	return total
}

func (d *RAMDirectory) Sync() error  { return nil }
func (d *RAMDirectory) Close() error { return nil }

type ramInput struct {
	data []byte
	name string
	pos  int64
}

func (in *ramInput) Name() string       { return in.name }
func (in *ramInput) Length() int64      { return int64(len(in.data)) }
func (in *ramInput) FilePointer() int64 { return in.pos }
func (in *ramInput) Close() error       { return nil }

func (in *ramInput) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(in.data)) {
		return fmt.Errorf("seek to %d outside %s (length %d)", pos, in.name, len(in.data))
	}
	in.pos = pos
	return nil
}

func (in *ramInput) ReadByte() (byte, error) {
	if in.pos >= int64(len(in.data)) {
		return 0, io.EOF
	}
	b := in.data[in.pos]
	in.pos++
	return b, nil
}

func (in *ramInput) ReadBytes(p []byte) error {
	if in.pos+int64(len(p)) > int64(len(in.data)) {
		return fmt.Errorf("reading %d bytes from %s at %d: %w", len(p), in.name, in.pos, io.ErrUnexpectedEOF)
	}
	copy(p, in.data[in.pos:])
	in.pos += int64(len(p))
	return nil
}

func (in *ramInput) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(in.data)) {
		return 0, io.EOF
	}
	n := copy(p, in.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (in *ramInput) Clone() IndexInput {
	c := *in
	return &c
}

type ramOutput struct {
	file *ramFile
	name string
	pos  int64
}

func (out *ramOutput) Name() string       { return out.name }
func (out *ramOutput) FilePointer() int64 { return out.pos }
func (out *ramOutput) Flush() error       { return nil }
func (out *ramOutput) Close() error       { return nil }

func (out *ramOutput) WriteByte(b byte) error {
	return out.WriteBytes([]byte{b})
}

func (out *ramOutput) WriteBytes(p []byte) error {
	out.file.mu.Lock()
	defer out.file.mu.Unlock()
	end := out.pos + int64(len(p))
	if end > int64(len(out.file.data)) {
		if end <= int64(cap(out.file.data)) {
			out.file.data = out.file.data[:end]
		} else {
			grown := make([]byte, end, 2*end)
			copy(grown, out.file.data)
			out.file.data = grown
		}
	}
	copy(out.file.data[out.pos:end], p)
	out.pos = end
	return nil
}

func (out *ramOutput) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("seek to %d in %s", pos, out.name)
	}
	out.pos = pos
	return nil
}
