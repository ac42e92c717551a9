package index

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoredFieldsRoundTrip(t *testing.T) {
	dir := store.NewRAMDirectory()
	doc := NewDocument(
		Keyword("id", "doc-1"),
		Text("title", "Distributed Segments"),
		UnIndexed("url", "https://example.com/a?b=c"),
		UnStored("body", "hidden body text"),
		TextReader("notes", strings.NewReader("streamed notes")),
		Text("title", "second title"),
	)
	info := writeDoc(t, dir, "_0", doc)

	fi, err := ReadFieldInfos(dir, "_0.fnm")
	require.NoError(t, err)
	fr, err := OpenFieldsReader(dir, info.Name, fi)
	require.NoError(t, err)
	defer fr.Close()
	require.Equal(t, 1, fr.Size())

	got, err := fr.Doc(0)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.Get("id"))
	assert.Equal(t, []string{"Distributed Segments", "second title"}, got.Values("title"))
	assert.Equal(t, "https://example.com/a?b=c", got.Get("url"))
	assert.Nil(t, got.GetField("body"))
	assert.Nil(t, got.GetField("notes"))
	assert.False(t, got.GetField("id").Tokenized)
	assert.True(t, got.GetField("title").Tokenized)

	_, err = fr.Doc(1)
	assert.Error(t, err)
}

func TestFieldInfosNumbering(t *testing.T) {
	fi := NewFieldInfos()
	fi.Add("title", false)
	fi.Add("body", true)
	fi.Add("title", true)
	fi.Add("body", false)

	n, ok := fi.FieldNumber("")
	require.True(t, ok)
	assert.Equal(t, 0, n)
	n, ok = fi.FieldNumber("title")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.True(t, fi.FieldInfo(1).IsIndexed)
	assert.True(t, fi.FieldInfo(2).IsIndexed)
	assert.Nil(t, fi.FieldInfo(3))
	_, ok = fi.FieldNumber("missing")
	assert.False(t, ok)

	dir := store.NewRAMDirectory()
	require.NoError(t, fi.Write(dir, "x.fnm"))
	back, err := ReadFieldInfos(dir, "x.fnm")
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), back.Size())
	for i := 0; i < fi.Size(); i++ {
		assert.Equal(t, *fi.FieldInfo(i), *back.FieldInfo(i))
	}
}

func TestDocumentWriterTerms(t *testing.T) {
	dir := store.NewRAMDirectory()
	info := writeDoc(t, dir, "_0", NewDocument(
		Keyword("id", "a"),
		Text("body", "the runners running quickly running home"),
	))
	r := openSegment(t, info, testOptions())
	defer r.Close()

	terms := allTerms(t, r)
	for term, df := range terms {
		assert.Equal(t, 1, df, term.String())
		ti, err := r.tis.Get(term)
		require.NoError(t, err)
		require.NotNil(t, ti, term.String())
		assert.EqualValues(t, 1, ti.DocFreq)

		pos, err := r.tis.GetPosition(term)
		require.NoError(t, err)
		back, ok, err := r.tis.GetTerm(pos)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, term, back)
	}
	assert.Contains(t, terms, NewTerm("id", "a"))
	assert.Contains(t, terms, NewTerm("body", "running"))
	assert.Contains(t, terms, NewTerm("body", "run"))
	assert.NotContains(t, terms, NewTerm("body", "the"))

	// stems share the position of their word
	tp, err := r.TermPositions()
	require.NoError(t, err)
	defer tp.Close()
	positionsOf := func(term Term) []int {
		require.NoError(t, tp.Seek(term))
		ok, err := tp.Next()
		require.NoError(t, err)
		require.True(t, ok)
		var pos []int
		for i := 0; i < tp.Freq(); i++ {
			p, err := tp.NextPosition()
			require.NoError(t, err)
			pos = append(pos, p)
		}
		return pos
	}
	running := positionsOf(NewTerm("body", "running"))
	assert.Equal(t, []int{1, 3}, running)
	assert.Subset(t, positionsOf(NewTerm("body", "run")), running)
}

func TestDocumentWriterNorms(t *testing.T) {
	dir := store.NewRAMDirectory()
	title := Text("title", "alpha beta gamma delta")
	title.Boost = 2
	info := writeDoc(t, dir, "_0", NewDocument(
		title,
		UnIndexed("raw", "not indexed"),
		Text("body", "alpha"),
	))
	r := openSegment(t, info, testOptions())
	defer r.Close()

	sim := DefaultSimilarity{}
	norms, err := r.Norms("title")
	require.NoError(t, err)
	require.Len(t, norms, 1)
	assert.Equal(t, sim.EncodeNorm(2*sim.LengthNorm("title", 4)), norms[0])

	norms, err = r.Norms("body")
	require.NoError(t, err)
	assert.Equal(t, sim.EncodeNorm(1), norms[0])

	norms, err = r.Norms("raw")
	require.NoError(t, err)
	assert.Equal(t, byte(0), norms[0])

	norms, err = r.Norms("missing")
	require.NoError(t, err)
	assert.Nil(t, norms)
}

func TestDocumentWriterMaxFieldLength(t *testing.T) {
	dir := store.NewRAMDirectory()
	dw := NewDocumentWriter(dir, tokenizer.New(), DefaultSimilarity{}, 2)
	require.NoError(t, dw.AddDocument("_0", NewDocument(Text("body", "alpha bravo charlie delta"))))
	r := openSegment(t, SegmentInfo{Name: "_0", DocCount: 1, Dir: dir}, testOptions())
	defer r.Close()

	terms := allTerms(t, r)
	assert.Contains(t, terms, NewTerm("body", "alpha"))
	assert.Contains(t, terms, NewTerm("body", "bravo"))
	assert.NotContains(t, terms, NewTerm("body", "charlie"))
}

func TestSuggestFields(t *testing.T) {
	dir := store.NewRAMDirectory()
	info := writeDoc(t, dir, "_0", NewDocument(
		Text("title", "Segment merging"),
		Text("body", "unrelated"),
		UnIndexed(SuggestField, "title t: title x:"),
	))
	r := openSegment(t, info, testOptions())
	defer r.Close()

	terms := allTerms(t, r)
	for _, text := range []string{"t:segment", "t:merging", "x:segment", "x:merging"} {
		assert.Contains(t, terms, NewTerm(SuggestField, text))
	}
	assert.NotContains(t, terms, NewTerm(SuggestField, "t:unrelated"))
	assert.Contains(t, r.FieldNames(true), SuggestField)
}

func TestSortPostings(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n += 13 {
		p := make([]*Posting, n)
		for i := range p {
			p[i] = &Posting{Term: Term{
				Field: string(rune('a' + rng.Intn(3))),
				Text:  randomWord(rng, i),
			}}
		}
		sortPostings(p, 0, len(p)-1)
		for i := 1; i < len(p); i++ {
			require.True(t, p[i-1].Term.Less(p[i].Term), "%v before %v", p[i-1].Term, p[i].Term)
		}
	}
}

// randomWord returns a word unique for i.
func randomWord(rng *rand.Rand, i int) string {
	var b strings.Builder
	for j := rng.Intn(5); j >= 0; j-- {
		b.WriteByte(byte('a' + rng.Intn(26)))
	}
	b.WriteByte('-')
	b.WriteString(strings.Repeat("z", i%7))
	b.WriteByte(byte('0' + i%10))
	b.WriteString(string(rune('A' + i/10)))
	return b.String()
}
