// Package errors defines the sentinel errors shared by the index engine and
// the IndexError wrapper that carries the offending file path.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptIndex = errors.New("corrupt index")
	ErrIndexVersion = errors.New("unsupported index version")
	ErrFileNotFound = errors.New("index file not found")
	ErrOutOfOrder   = errors.New("postings out of order")
	ErrFieldNumber  = errors.New("field number out of range")
	ErrDocDeleted   = errors.New("document is deleted")
	ErrDocRange     = errors.New("document number out of range")
	ErrClosed       = errors.New("already closed")
	ErrLockTimeout  = errors.New("commit lock timeout")
)

type IndexError struct {
	Err  error
	Op   string
	Path string
}

func (e *IndexError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Err.Error())
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op, path string) *IndexError {
	return &IndexError{
		Err:  sentinel,
		Op:   op,
		Path: path,
	}
}

// Corruptf reports malformed content in path. The result matches
// ErrCorruptIndex under errors.Is.
func Corruptf(path string, format string, args ...any) *IndexError {
	return &IndexError{
		Err:  fmt.Errorf("%w: %s", ErrCorruptIndex, fmt.Sprintf(format, args...)),
		Op:   "reading",
		Path: path,
	}
}

// IsCorruption reports whether err is fatal to the index contents rather
// than an environmental I/O failure.
func IsCorruption(err error) bool {
	switch {
	case errors.Is(err, ErrCorruptIndex),
		errors.Is(err, ErrIndexVersion),
		errors.Is(err, ErrOutOfOrder),
		errors.Is(err, ErrFieldNumber):
		return true
	default:
		return false
	}
}

// Is and As re-export the standard library helpers so callers need a single
// errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
