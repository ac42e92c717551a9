package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const bufferSize = 4096

// FSDirectory stores files in a single filesystem directory.
type FSDirectory struct {
	path string
}

// NewFSDirectory opens (creating if needed) the directory at path.
func NewFSDirectory(path string) (*FSDirectory, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving index directory %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", abs, err)
	}
	return &FSDirectory{path: abs}, nil
}

func (d *FSDirectory) ID() string { return "fs:" + d.path }

// Path returns the absolute directory path.
func (d *FSDirectory) Path() string { return d.path }

func (d *FSDirectory) fullPath(name string) string {
	return filepath.Join(d.path, name)
}

func (d *FSDirectory) OpenInput(name string) (IndexInput, error) {
	path := d.fullPath(name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("opening %s: %w", path, ErrNotExist)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &fsInput{file: f, name: name, length: st.Size()}, nil
}

func (d *FSDirectory) CreateOutput(name string) (IndexOutput, error) {
	path := d.fullPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return &fsOutput{file: f, w: bufio.NewWriterSize(f, bufferSize), name: name}, nil
}

func (d *FSDirectory) Exists(name string) bool {
	_, err := os.Stat(d.fullPath(name))
	return err == nil
}

func (d *FSDirectory) FileLength(name string) (int64, error) {
	st, err := os.Stat(d.fullPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("stat %s: %w", d.fullPath(name), ErrNotExist)
		}
		return 0, fmt.Errorf("stat %s: %w", d.fullPath(name), err)
	}
	return st.Size(), nil
}

func (d *FSDirectory) Delete(name string) error {
	if err := os.Remove(d.fullPath(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", d.fullPath(name), ErrNotExist)
		}
		return fmt.Errorf("deleting %s: %w", d.fullPath(name), err)
	}
	return nil
}

func (d *FSDirectory) Rename(from, to string) error {
	if err := os.Rename(d.fullPath(from), d.fullPath(to)); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", d.fullPath(from), d.fullPath(to), err)
	}
	return nil
}

func (d *FSDirectory) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("reading index directory %s: %w", d.path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *FSDirectory) Sync() error {
	f, err := os.Open(d.path)
	if err != nil {
		return fmt.Errorf("opening index directory %s for sync: %w", d.path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index directory %s: %w", d.path, err)
	}
	return nil
}

func (d *FSDirectory) Close() error { return nil }

type fsInput struct {
	file   *os.File
	name   string
	length int64
	pos    int64
	clone  bool

	buf      [bufferSize]byte
	bufStart int64
	bufLen   int
}

func (in *fsInput) Name() string       { return in.name }
func (in *fsInput) Length() int64      { return in.length }
func (in *fsInput) FilePointer() int64 { return in.pos }

func (in *fsInput) Seek(pos int64) error {
	if pos < 0 || pos > in.length {
		return fmt.Errorf("seek to %d outside %s (length %d)", pos, in.name, in.length)
	}
	in.pos = pos
	return nil
}

func (in *fsInput) ReadByte() (byte, error) {
	if in.pos < in.bufStart || in.pos >= in.bufStart+int64(in.bufLen) {
		if in.pos >= in.length {
			return 0, io.EOF
		}
		n, err := in.file.ReadAt(in.buf[:], in.pos)
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, fmt.Errorf("reading %s at %d: %w", in.name, in.pos, err)
		}
		in.bufStart = in.pos
		in.bufLen = n
	}
	b := in.buf[in.pos-in.bufStart]
	in.pos++
	return b, nil
}

func (in *fsInput) ReadBytes(p []byte) error {
	if in.pos+int64(len(p)) > in.length {
		return fmt.Errorf("reading %d bytes from %s at %d: %w", len(p), in.name, in.pos, io.ErrUnexpectedEOF)
	}
	if len(p) <= bufferSize/4 {
		for i := range p {
			b, err := in.ReadByte()
			if err != nil {
				return err
			}
			p[i] = b
		}
		return nil
	}
	if _, err := in.file.ReadAt(p, in.pos); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading %s at %d: %w", in.name, in.pos, err)
	}
	in.pos += int64(len(p))
	return nil
}

func (in *fsInput) ReadAt(p []byte, off int64) (int, error) {
	return in.file.ReadAt(p, off)
}

func (in *fsInput) Clone() IndexInput {
	c := &fsInput{file: in.file, name: in.name, length: in.length, pos: in.pos, clone: true}
	return c
}

// Close closes the underlying file. Closing a clone is a no-op; the
// original stream owns the handle.
func (in *fsInput) Close() error {
	if in.clone {
		return nil
	}
	return in.file.Close()
}

type fsOutput struct {
	file *os.File
	w    *bufio.Writer
	name string
	pos  int64
}

func (out *fsOutput) Name() string       { return out.name }
func (out *fsOutput) FilePointer() int64 { return out.pos }

func (out *fsOutput) WriteByte(b byte) error {
	if err := out.w.WriteByte(b); err != nil {
		return fmt.Errorf("writing %s: %w", out.name, err)
	}
	out.pos++
	return nil
}

func (out *fsOutput) WriteBytes(p []byte) error {
	n, err := out.w.Write(p)
	out.pos += int64(n)
	if err != nil {
		return fmt.Errorf("writing %s: %w", out.name, err)
	}
	return nil
}

func (out *fsOutput) Seek(pos int64) error {
	if err := out.w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", out.name, err)
	}
	if _, err := out.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seeking %s: %w", out.name, err)
	}
	out.pos = pos
	return nil
}

// Flush writes buffered bytes and fsyncs the file.
func (out *fsOutput) Flush() error {
	if err := out.w.Flush(); err != nil {
		return fmt.Errorf("flushing %s: %w", out.name, err)
	}
	if err := out.file.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", out.name, err)
	}
	return nil
}

func (out *fsOutput) Close() error {
	if err := out.w.Flush(); err != nil {
		out.file.Close()
		return fmt.Errorf("flushing %s: %w", out.name, err)
	}
	return out.file.Close()
}
