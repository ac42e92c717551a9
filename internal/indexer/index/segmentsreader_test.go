package index

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openThree commits segments of 2, 0 and 3 documents.
func openThree(t *testing.T) (store.Directory, Options, *SegmentsReader) {
	t.Helper()
	dir := store.NewRAMDirectory()
	opts := testOptions()
	a := buildSegment(t, dir, "_a", opts, "apple banana", "banana cherry")
	empty := buildSegment(t, dir, "_e", opts)
	c := buildSegment(t, dir, "_c", opts, "cherry date", "apple", "elder banana")
	commitInfos(t, dir, opts, a, empty, c)

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	sr, ok := r.(*SegmentsReader)
	require.True(t, ok)
	return dir, opts, sr
}

func TestSegmentsReaderIndex(t *testing.T) {
	_, _, r := openThree(t)
	defer r.Close()

	assert.Equal(t, 5, r.MaxDoc())
	assert.Equal(t, 5, r.NumDocs())
	for n, want := range []int{0, 0, 2, 2, 2} {
		assert.Equal(t, want, r.ReaderIndex(n), "doc %d", n)
	}
	doc, err := r.Document(3)
	require.NoError(t, err)
	assert.Equal(t, "apple", doc.Get("body"))
	_, err = r.Document(5)
	assert.Error(t, err)
}

func TestSegmentsTermEnumMergesTerms(t *testing.T) {
	_, _, r := openThree(t)
	defer r.Close()

	terms := allTerms(t, r)
	assert.Equal(t, 2, terms[NewTerm("body", "apple")])
	assert.Equal(t, 3, terms[NewTerm("body", "banana")])
	assert.Equal(t, 2, terms[NewTerm("body", "cherry")])
	assert.Equal(t, 1, terms[NewTerm("body", "date")])

	df, err := r.DocFreq(NewTerm("body", "banana"))
	require.NoError(t, err)
	assert.Equal(t, 3, df)

	e, err := r.Terms()
	require.NoError(t, err)
	var prev Term
	for {
		ok, err := e.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.True(t, prev.Less(e.Term()), "%v then %v", prev, e.Term())
		prev = e.Term()
	}
	require.NoError(t, e.Close())

	from, err := r.TermsFrom(NewTerm("body", "cherry"))
	require.NoError(t, err)
	assert.Equal(t, NewTerm("body", "cherry"), from.Term())
	assert.Equal(t, 2, from.DocFreq())
	ok, err := from.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, NewTerm("body", "date"), from.Term())
	require.NoError(t, from.Close())
}

func TestSegmentsTermDocsRebase(t *testing.T) {
	_, _, r := openThree(t)
	defer r.Close()

	assert.Equal(t, []int{0, 1, 4}, postings(t, r, NewTerm("body", "banana")))
	assert.Equal(t, []int{0, 3}, postings(t, r, NewTerm("body", "apple")))

	td, err := r.TermDocs()
	require.NoError(t, err)
	defer td.Close()
	require.NoError(t, td.Seek(NewTerm("body", "banana")))
	docs := make([]int, 8)
	freqs := make([]int, 8)
	var got []int
	for {
		n, err := td.Read(docs, freqs)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, docs[:n]...)
	}
	assert.Equal(t, []int{0, 1, 4}, got)

	require.NoError(t, td.Seek(NewTerm("body", "banana")))
	ok, err := td.SkipTo(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, td.Doc())

	tp, err := r.TermPositions()
	require.NoError(t, err)
	defer tp.Close()
	require.NoError(t, tp.Seek(NewTerm("body", "banana")))
	var positions []int
	for {
		ok, err := tp.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		pos, err := tp.NextPosition()
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	assert.Equal(t, []int{1, 0, 1}, positions)
}

func TestSegmentsReaderNormsAndDeletes(t *testing.T) {
	dir, opts, r := openThree(t)

	norms, err := r.Norms("body")
	require.NoError(t, err)
	require.Len(t, norms, 5)
	again, err := r.Norms("body")
	require.NoError(t, err)
	assert.Same(t, &norms[0], &again[0])
	sim := DefaultSimilarity{}
	assert.Equal(t, sim.EncodeNorm(sim.LengthNorm("body", 1)), norms[3])

	require.NoError(t, r.Delete(3))
	assert.True(t, r.IsDeleted(3))
	assert.Equal(t, 4, r.NumDocs())
	assert.Equal(t, []int{0}, postings(t, r, NewTerm("body", "apple")))
	require.NoError(t, r.Close())

	reopened, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 4, reopened.NumDocs())
	assert.True(t, reopened.IsDeleted(3))
	assert.True(t, dir.Exists("_c.del"))
}

func TestOpenReaderSingleSegment(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	commitInfos(t, dir, opts, buildSegment(t, dir, "_a", opts, "solo"))

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	_, ok := r.(*SegmentReader)
	assert.True(t, ok)
	assert.Equal(t, 1, r.NumDocs())
}
