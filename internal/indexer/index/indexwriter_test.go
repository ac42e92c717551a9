package index

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFSDir(t *testing.T) *store.FSDirectory {
	t.Helper()
	dir, err := store.NewFSDirectory(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestOptimizeAndDeleteEndToEnd(t *testing.T) {
	dir := newFSDir(t)
	opts := testOptions()
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)
	defer w.Close()

	tokens := []string{"tokena", "tokenb", "tokenc"}
	for i, tok := range tokens {
		require.NoError(t, w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", tok))))
	}
	require.NoError(t, w.Optimize())
	require.Equal(t, 1, w.SegmentCount())
	assert.Equal(t, 3, w.DocCount())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	for _, tok := range tokens {
		df, err := r.DocFreq(NewTerm("body", tok))
		require.NoError(t, err)
		assert.Equal(t, 1, df, tok)
	}
	require.NoError(t, r.Delete(1))
	require.NoError(t, r.Close())
	segment := w.Segments()[0].Name
	require.True(t, dir.Exists(segment+".del"))

	require.NoError(t, w.Optimize())
	require.Equal(t, 1, w.SegmentCount())
	assert.Equal(t, 2, w.DocCount())
	after := w.Segments()[0].Name
	assert.NotEqual(t, segment, after)
	assert.False(t, dir.Exists(after+".del"))
	assert.False(t, dir.Exists(segment+".del"))
	for _, f := range SegmentFiles(segment) {
		assert.False(t, dir.Exists(f), f)
	}

	r, err = OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.NumDocs())
	df, err := r.DocFreq(NewTerm("body", "tokenb"))
	require.NoError(t, err)
	assert.Zero(t, df)
}

func TestAddDocumentReplacesById(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)

	require.NoError(t, w.AddDocument("a", NewDocument(Text("body", "first version"))))
	require.NoError(t, w.AddDocument("b", NewDocument(Text("body", "other"))))
	require.NoError(t, w.FlushRamSegments())
	// the replacement lands in memory while the old copy is on disk
	require.NoError(t, w.AddDocument("a", NewDocument(Text("body", "second version"))))
	require.NoError(t, w.Close())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.NumDocs())
	assert.Len(t, postings(t, r, NewTerm(IDField, "a")), 1)
	assert.Empty(t, postings(t, r, NewTerm("body", "first")))
	docs := postings(t, r, NewTerm("body", "second"))
	require.Len(t, docs, 1)
	doc, err := r.Document(docs[0])
	require.NoError(t, err)
	assert.Equal(t, "a", doc.Get(IDField))
	assert.Equal(t, float64(1), counterValue(t, opts.Metrics.DocsReplacedTotal))
	assert.Equal(t, float64(3), counterValue(t, opts.Metrics.DocsAddedTotal))
}

func TestReplaceWithinUnmergedSegment(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	opts.MinMergeDocs = 2
	opts.MergeFactor = 2
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", "v1"))))
	}
	require.NoError(t, w.Close())

	w, err = NewIndexWriter(dir, false, opts)
	require.NoError(t, err)
	require.Equal(t, 1, w.SegmentCount())
	// the deletion is held back until the next merge commits
	require.NoError(t, w.AddDocument("2", NewDocument(Text("body", "v2"))))
	require.NoError(t, w.Close())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 4, r.NumDocs())
	assert.Len(t, postings(t, r, NewTerm(IDField, "2")), 1)
	assert.Len(t, postings(t, r, NewTerm("body", "v2")), 1)
}

func TestMergePolicyKeepsSegmentsBounded(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	opts.MinMergeDocs = 3
	opts.MergeFactor = 3
	var commits []CommitInfo
	opts.OnCommit = func(c CommitInfo) { commits = append(commits, c) }
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)

	for i := 0; i < 27; i++ {
		require.NoError(t, w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", fmt.Sprintf("word%d common", i)))))
		// never more than factor-1 segments per level plus the one in flight
		assert.LessOrEqual(t, w.SegmentCount(), 3*(opts.MergeFactor-1)+1)
	}
	assert.Equal(t, 27, w.DocCount())
	require.Len(t, w.Segments(), 1)
	assert.Equal(t, 27, w.Segments()[0].DocCount)
	require.NotEmpty(t, commits)
	last := commits[len(commits)-1]
	assert.Equal(t, 27, last.DocCount)
	assert.Equal(t, w.Segments()[0].Name, last.Segments[0])

	v, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, last.Version, v)
	require.NoError(t, w.Close())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	df, err := r.DocFreq(NewTerm("body", "common"))
	require.NoError(t, err)
	assert.Equal(t, 27, df)
	for i := 0; i < 27; i++ {
		doc, err := r.Document(i)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), doc.Get(IDField))
	}
}

func TestWriterVersionFollowsReaderCommits(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", "x"))))
	}
	require.NoError(t, w.FlushRamSegments())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	require.NoError(t, r.Delete(0))
	require.NoError(t, r.Close())
	afterReader, err := ReadVersion(dir)
	require.NoError(t, err)

	stale, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer stale.Close()

	require.NoError(t, w.Optimize())
	v, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Greater(t, v, afterReader)

	// the optimize made the open reader stale
	require.NoError(t, stale.Delete(1))
	assert.False(t, stale.IsDeleted(1))
	require.NoError(t, w.Close())
}

func TestClosedWriterRejectsAdds(t *testing.T) {
	w, err := NewIndexWriter(store.NewRAMDirectory(), true, testOptions())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.AddDocument("x", NewDocument(Text("body", "late"))))
}

func TestOpenMissingIndex(t *testing.T) {
	_, err := NewIndexWriter(store.NewRAMDirectory(), false, testOptions())
	assert.Error(t, err)
}

func copyFile(t *testing.T, dir store.Directory, name string) []byte {
	t.Helper()
	in, err := dir.OpenInput(name)
	require.NoError(t, err)
	defer in.Close()
	buf := make([]byte, in.Length())
	require.NoError(t, in.ReadBytes(buf))
	return buf
}

func restoreFile(t *testing.T, dir store.Directory, name string, data []byte) {
	t.Helper()
	out, err := dir.CreateOutput(name)
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes(data))
	require.NoError(t, out.Close())
}

func TestFailedMergeKeepsUpsertDeletions(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.AddDocument("a", NewDocument(Text("body", "first"))))
	require.NoError(t, w.FlushRamSegments())
	require.NoError(t, w.AddDocument("a", NewDocument(Text("body", "second"))))

	before := w.Segments()
	buffered := before[len(before)-1]
	require.Equal(t, store.Directory(w.ramDir), buffered.Dir)
	prx := buffered.Name + ".prx"
	data := copyFile(t, w.ramDir, prx)
	require.NoError(t, w.ramDir.Delete(prx))

	require.Error(t, w.Optimize())
	assert.Equal(t, before, w.Segments())

	restoreFile(t, w.ramDir, prx, data)
	require.NoError(t, w.Optimize())
	require.Equal(t, 1, w.SegmentCount())

	r, err := OpenReader(dir, opts)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 1, r.NumDocs())
	assert.Len(t, postings(t, r, NewTerm(IDField, "a")), 1)
	assert.Empty(t, postings(t, r, NewTerm("body", "first")))
	assert.Len(t, postings(t, r, NewTerm("body", "second")), 1)
}

func TestCreateRemovesOrphanedSegments(t *testing.T) {
	dir := store.NewRAMDirectory()
	opts := testOptions()
	w, err := NewIndexWriter(dir, true, opts)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", "old"))))
	}
	require.NoError(t, w.Optimize())
	old := w.Segments()[0].Name
	require.NoError(t, w.Close())
	restoreFile(t, dir, "notes.txt", []byte("kept"))

	w, err = NewIndexWriter(dir, true, opts)
	require.NoError(t, err)
	defer w.Close()
	assert.Zero(t, w.SegmentCount())
	for _, f := range SegmentFiles(old) {
		assert.False(t, dir.Exists(f), f)
	}
	assert.True(t, dir.Exists(SegmentsFile))
	assert.True(t, dir.Exists("notes.txt"))
}

func TestSegmentOf(t *testing.T) {
	for file, want := range map[string]string{
		"_a.tis": "_a",
		"_1z.del": "_1z",
		"_3.nrm": "_3",
	} {
		got, ok := segmentOf(file)
		assert.True(t, ok, file)
		assert.Equal(t, want, got)
	}
	for _, file := range []string{"segments", "segments.new", "commit.lock", "_.tis", "_a.tmp"} {
		_, ok := segmentOf(file)
		assert.False(t, ok, file)
	}
}
