// Package store provides the named random-access byte streams that index
// segments are written to and read from. A Directory is either backed by a
// filesystem directory (FSDirectory) or held entirely in memory
// (RAMDirectory).
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotExist is returned (wrapped) when a named file is missing.
var ErrNotExist = errors.New("file does not exist")

// Directory is a flat namespace of files.
type Directory interface {
	// ID identifies the directory for cache keys. Two Directory values
	// with the same ID must refer to the same files.
	ID() string
	OpenInput(name string) (IndexInput, error)
	// CreateOutput creates or truncates name.
	CreateOutput(name string) (IndexOutput, error)
	Exists(name string) bool
	FileLength(name string) (int64, error)
	Delete(name string) error
	// Rename atomically replaces to with from.
	Rename(from, to string) error
	List() ([]string, error)
	// Sync makes previously renamed and created entries durable.
	Sync() error
	Close() error
}

// IndexInput is a seekable read stream. It is not safe for concurrent use;
// use Clone to obtain an independent cursor over the same bytes.
type IndexInput interface {
	io.ByteReader
	io.ReaderAt
	io.Closer
	ReadBytes(p []byte) error
	Seek(pos int64) error
	FilePointer() int64
	Length() int64
	Clone() IndexInput
	Name() string
}

// IndexOutput is a seekable write stream.
type IndexOutput interface {
	io.ByteWriter
	io.Closer
	WriteBytes(p []byte) error
	// Seek repositions the write cursor; used to patch fixed-size headers.
	Seek(pos int64) error
	FilePointer() int64
	Flush() error
	Name() string
}

// ReadUint32 reads a little-endian u32.
func ReadUint32(in IndexInput) (uint32, error) {
	var b [4]byte
	if err := in.ReadBytes(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadVInt reads an LEB128 encoded unsigned integer that must fit in 32 bits.
func ReadVInt(in IndexInput) (uint32, error) {
	v, err := binary.ReadUvarint(in)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("vint overflow in %s at %d", in.Name(), in.FilePointer())
	}
	return uint32(v), nil
}

// ReadVLong reads an LEB128 encoded unsigned integer.
func ReadVLong(in IndexInput) (uint64, error) {
	return binary.ReadUvarint(in)
}

// ReadString reads a u32 length prefixed string.
func ReadString(in IndexInput) (string, error) {
	n, err := ReadUint32(in)
	if err != nil {
		return "", err
	}
	if int64(n) > in.Length()-in.FilePointer() {
		return "", fmt.Errorf("string length %d exceeds remaining bytes of %s", n, in.Name())
	}
	buf := make([]byte, n)
	if err := in.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteUint32 writes a little-endian u32.
func WriteUint32(out IndexOutput, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return out.WriteBytes(b[:])
}

// WriteVInt writes v as LEB128.
func WriteVInt(out IndexOutput, v uint32) error {
	return WriteVLong(out, uint64(v))
}

// WriteVLong writes v as LEB128.
func WriteVLong(out IndexOutput, v uint64) error {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return out.WriteBytes(b[:n])
}

// WriteString writes a u32 length prefixed string.
func WriteString(out IndexOutput, s string) error {
	if err := WriteUint32(out, uint32(len(s))); err != nil {
		return err
	}
	return out.WriteBytes([]byte(s))
}
