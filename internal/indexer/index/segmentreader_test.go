package index

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteVisibility(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "apple pie", "apple tart", "pear tart")
	commitInfos(t, dir, opts, info)

	r := openSegment(t, info, opts)
	require.Equal(t, []int{0, 1}, postings(t, r, NewTerm("body", "apple")))

	require.NoError(t, r.Delete(1))
	assert.True(t, r.IsDeleted(1))
	assert.True(t, r.HasDeletions())
	assert.Equal(t, 2, r.NumDocs())
	assert.Equal(t, 3, r.MaxDoc())
	_, err := r.Document(1)
	assert.ErrorIs(t, err, pkgerrors.ErrDocDeleted)
	assert.Equal(t, []int{0}, postings(t, r, NewTerm("body", "apple")))
	assert.Equal(t, []int{2}, postings(t, r, NewTerm("body", "tart")))

	doc, err := r.Document(2)
	require.NoError(t, err)
	assert.Equal(t, "pear tart", doc.Get("body"))

	before, err := ReadVersion(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	after, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
	assert.True(t, dir.Exists("_s.del"))

	reopened := openSegment(t, info, opts)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.NumDocs())
	assert.True(t, reopened.IsDeleted(1))
}

func TestDeleteTerm(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "red fish", "blue fish", "red bird")
	commitInfos(t, dir, opts, info)

	r := openSegment(t, info, opts)
	n, err := r.DeleteTerm(NewTerm("body", "red"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, r.NumDocs())
	require.NoError(t, r.Close())
}

func TestStaleReaderDeleteIsNoop(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "one", "two")
	commitInfos(t, dir, opts, info)

	stale := openSegment(t, info, opts)
	defer stale.Close()
	fresh := openSegment(t, info, opts)
	require.NoError(t, fresh.Delete(0))
	require.NoError(t, fresh.Close())

	require.NoError(t, stale.Delete(1))
	assert.False(t, stale.IsDeleted(1))
	assert.Equal(t, 2, stale.NumDocs())
	assert.Equal(t, float64(1), counterValue(t, opts.Metrics.StaleDeletesTotal))
}

func TestFlushMergeDeletionsIdempotent(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "a1", "b2", "c3", "d4")
	commitInfos(t, dir, opts, info)

	r := openSegment(t, info, opts)
	require.NoError(t, r.DoMergeDelete(2))
	assert.True(t, r.HasPendingMergeDeletions())
	assert.False(t, dir.Exists("_s.del"))

	v0, err := ReadVersion(dir)
	require.NoError(t, err)
	require.NoError(t, r.FlushMergeDeletions())
	assert.False(t, r.HasPendingMergeDeletions())
	v1, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, v0+1, v1)
	first, err := ReadBitVector(dir, "_s.del")
	require.NoError(t, err)

	require.NoError(t, r.FlushMergeDeletions())
	v2, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	require.NoError(t, r.Close())

	reopened := openSegment(t, info, opts)
	defer reopened.Close()
	for i := 0; i < info.DocCount; i++ {
		assert.Equal(t, first.Get(i), reopened.IsDeleted(i), "doc %d", i)
	}
	assert.True(t, reopened.IsDeleted(2))
	assert.Equal(t, 3, reopened.NumDocs())
}

func TestCloseDiscardDropsMergeDeletions(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "x", "y")
	commitInfos(t, dir, opts, info)

	r := openSegment(t, info, opts)
	require.NoError(t, r.DoMergeDelete(0))
	require.NoError(t, r.CloseDiscard())
	assert.False(t, dir.Exists("_s.del"))
}

func TestOpenSegmentDocCountMismatch(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	info := buildSegment(t, dir, "_s", opts, "x", "y")
	info.DocCount = 5
	_, err := OpenSegmentReader(info, opts)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCorruption(err))
}

func TestBitVectorPersistence(t *testing.T) {
	dir := store.NewRAMDirectory()
	bv := NewBitVector(21)
	for _, n := range []int{0, 7, 8, 20} {
		bv.Set(n)
	}
	bv.Clear(7)
	assert.Equal(t, 3, bv.Count())
	require.NoError(t, bv.Write(dir, "x.del"))

	raw, err := dir.OpenInput("x.del")
	require.NoError(t, err)
	defer raw.Close()
	assert.EqualValues(t, 8+3, raw.Length())

	back, err := ReadBitVector(dir, "x.del")
	require.NoError(t, err)
	assert.Equal(t, 21, back.Size())
	assert.Equal(t, 3, back.Count())
	for n := 0; n < 21; n++ {
		assert.Equal(t, bv.Get(n), back.Get(n), "bit %d", n)
	}
	assert.False(t, back.Get(100))
}
