package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

// MaxFieldCount bounds the number of fields a .fnm file may declare.
const MaxFieldCount = 1 << 16

type FieldInfo struct {
	Name      string
	IsIndexed bool
	Number    int
}

// FieldInfos maps field names to the small integers used in segment files.
// Numbers are assigned in first-seen order and never change.
type FieldInfos struct {
	byNumber []*FieldInfo
	byName   map[string]*FieldInfo
}

// NewFieldInfos returns a table holding only the unindexed placeholder field
// "" as number 0.
func NewFieldInfos() *FieldInfos {
	fi := newEmptyFieldInfos()
	fi.Add("", false)
	return fi
}

func newEmptyFieldInfos() *FieldInfos {
	return &FieldInfos{byName: make(map[string]*FieldInfo)}
}

// Add registers name. An existing field is promoted to indexed, never
// demoted.
func (fi *FieldInfos) Add(name string, indexed bool) {
	if f, ok := fi.byName[name]; ok {
		if indexed && !f.IsIndexed {
			f.IsIndexed = true
		}
		return
	}
	f := &FieldInfo{Name: name, IsIndexed: indexed, Number: len(fi.byNumber)}
	fi.byNumber = append(fi.byNumber, f)
	fi.byName[name] = f
}

// AddDocument registers every field of doc.
func (fi *FieldInfos) AddDocument(doc *Document) {
	for _, f := range doc.Fields() {
		fi.Add(f.Name, f.Indexed)
	}
}

func (fi *FieldInfos) AddAll(names []string, indexed bool) {
	for _, name := range names {
		fi.Add(name, indexed)
	}
}

func (fi *FieldInfos) FieldNumber(name string) (int, bool) {
	f, ok := fi.byName[name]
	if !ok {
		return -1, false
	}
	return f.Number, true
}

// FieldInfo returns nil when number is out of range.
func (fi *FieldInfos) FieldInfo(number int) *FieldInfo {
	if number < 0 || number >= len(fi.byNumber) {
		return nil
	}
	return fi.byNumber[number]
}

// FieldName returns "" when number is out of range.
func (fi *FieldInfos) FieldName(number int) string {
	if f := fi.FieldInfo(number); f != nil {
		return f.Name
	}
	return ""
}

func (fi *FieldInfos) Size() int { return len(fi.byNumber) }

// Names returns the names of fields whose indexed flag equals indexed, in
// number order.
func (fi *FieldInfos) Names(indexed bool) []string {
	var names []string
	for _, f := range fi.byNumber {
		if f.IsIndexed == indexed {
			names = append(names, f.Name)
		}
	}
	return names
}

// Write stores the table as file name in dir.
func (fi *FieldInfos) Write(dir store.Directory, name string) (err error) {
	out, err := dir.CreateOutput(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	if err := store.WriteUint32(out, uint32(len(fi.byNumber))); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	for _, f := range fi.byNumber {
		if err := store.WriteString(out, f.Name); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		var flag byte
		if f.IsIndexed {
			flag = 1
		}
		if err := out.WriteByte(flag); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// ReadFieldInfos loads the table stored as file name in dir.
func ReadFieldInfos(dir store.Directory, name string) (*FieldInfos, error) {
	in, err := dir.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	count, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(name, "field count: %v", err)
	}
	if count > MaxFieldCount {
		return nil, pkgerrors.Corruptf(name, "field count %d exceeds %d", count, MaxFieldCount)
	}
	fi := newEmptyFieldInfos()
	for i := uint32(0); i < count; i++ {
		fname, err := store.ReadString(in)
		if err != nil {
			return nil, pkgerrors.Corruptf(name, "field %d name: %v", i, err)
		}
		flag, err := in.ReadByte()
		if err != nil {
			return nil, pkgerrors.Corruptf(name, "field %d flags: %v", i, err)
		}
		if _, dup := fi.byName[fname]; dup {
			return nil, pkgerrors.Corruptf(name, "duplicate field %q", fname)
		}
		fi.Add(fname, flag != 0)
	}
	return fi, nil
}
