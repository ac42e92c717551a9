package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
	"github.com/bits-and-blooms/bitset"
)

// BitVector marks deleted documents of one segment. On disk it is
// "size u32, count u32" followed by ceil(size/8) bytes, bit n being bit
// n&7 of byte n>>3.
type BitVector struct {
	bits *bitset.BitSet
	size int
}

func NewBitVector(size int) *BitVector {
	return &BitVector{bits: bitset.New(uint(size)), size: size}
}

func (bv *BitVector) Set(n int) { bv.bits.Set(uint(n)) }

func (bv *BitVector) Clear(n int) { bv.bits.Clear(uint(n)) }

func (bv *BitVector) Get(n int) bool {
	if n < 0 || n >= bv.size {
		return false
	}
	return bv.bits.Test(uint(n))
}

func (bv *BitVector) Size() int { return bv.size }

// Count returns the number of set bits.
func (bv *BitVector) Count() int { return int(bv.bits.Count()) }

// Clone returns an independent copy.
func (bv *BitVector) Clone() *BitVector {
	return &BitVector{bits: bv.bits.Clone(), size: bv.size}
}

func (bv *BitVector) bytes() []byte {
	out := make([]byte, (bv.size+7)/8)
	for i, e := bv.bits.NextSet(0); e && int(i) < bv.size; i, e = bv.bits.NextSet(i + 1) {
		out[i>>3] |= 1 << (i & 7)
	}
	return out
}

// Write stores the vector as file name in dir.
func (bv *BitVector) Write(dir store.Directory, name string) (err error) {
	out, err := dir.CreateOutput(name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	if err := store.WriteUint32(out, uint32(bv.size)); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := store.WriteUint32(out, uint32(bv.Count())); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := out.WriteBytes(bv.bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return out.Flush()
}

// ReadBitVector loads file name from dir.
func ReadBitVector(dir store.Directory, name string) (*BitVector, error) {
	in, err := dir.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	size, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(name, "size: %v", err)
	}
	count, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(name, "count: %v", err)
	}
	if int64(size+7)/8 != in.Length()-in.FilePointer() {
		return nil, pkgerrors.Corruptf(name, "size %d does not match file length %d", size, in.Length())
	}
	raw := make([]byte, (size+7)/8)
	if err := in.ReadBytes(raw); err != nil {
		return nil, pkgerrors.Corruptf(name, "bits: %v", err)
	}
	bv := NewBitVector(int(size))
	for i, b := range raw {
		for j := 0; b != 0; j++ {
			if b&1 != 0 && i*8+j < int(size) {
				bv.Set(i*8 + j)
			}
			b >>= 1
		}
	}
	if bv.Count() != int(count) {
		return nil, pkgerrors.Corruptf(name, "count %d does not match %d set bits", count, bv.Count())
	}
	return bv, nil
}
