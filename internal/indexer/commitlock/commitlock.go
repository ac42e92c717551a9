// Package commitlock provides the mutual-exclusion primitive that serializes
// every read-modify-write of an index's segments file and deletion files.
//
// Code that must only run while the lock is held takes a *Token parameter.
// A Token can only be obtained from Acquire, so holding one is proof that
// the lock was taken.
package commitlock

import (
	"fmt"
	"sync"
)

// Locker is implemented by every commit lock backend.
type Locker interface {
	Lock() error
	Unlock() error
}

// Token is proof of possession of a Locker.
type Token struct {
	mu       sync.Mutex
	locker   Locker
	released bool
}

// Acquire blocks until l is held and returns the proof token.
func Acquire(l Locker) (*Token, error) {
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("acquiring commit lock: %w", err)
	}
	return &Token{locker: l}, nil
}

// Release unlocks the underlying lock. Releasing twice is a no-op.
func (t *Token) Release() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return nil
	}
	t.released = true
	if err := t.locker.Unlock(); err != nil {
		return fmt.Errorf("releasing commit lock: %w", err)
	}
	return nil
}

// Held reports whether the token still holds its lock.
func (t *Token) Held() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.released
}

// Mutex is an in-process commit lock.
type Mutex struct {
	mu sync.Mutex
}

func NewMutex() *Mutex { return &Mutex{} }

func (m *Mutex) Lock() error {
	m.mu.Lock()
	return nil
}

func (m *Mutex) Unlock() error {
	m.mu.Unlock()
	return nil
}

var named sync.Map

// Named returns the process-wide Mutex registered under name, creating it on
// first use. Writers and readers of one index share a lock by name.
func Named(name string) *Mutex {
	v, _ := named.LoadOrStore(name, &Mutex{})
	return v.(*Mutex)
}
