package index

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// testOptions isolates a test from the process-wide cache and locks.
func testOptions() Options {
	return Options{
		Lock:    commitlock.NewMutex(),
		Cache:   NewSegmentsCache(CacheOptions{Logger: logger.Discard()}),
		Logger:  logger.Discard(),
		Metrics: metrics.NewUnregistered(),
	}
}

// writeDoc writes doc as the one-document segment name.
func writeDoc(t *testing.T, dir store.Directory, name string, doc *Document) SegmentInfo {
	t.Helper()
	dw := NewDocumentWriter(dir, tokenizer.New(), DefaultSimilarity{}, 0)
	require.NoError(t, dw.AddDocument(name, doc))
	return SegmentInfo{Name: name, DocCount: 1, Dir: dir}
}

func openSegment(t *testing.T, info SegmentInfo, opts Options) *SegmentReader {
	t.Helper()
	r, err := OpenSegmentReader(info, opts)
	require.NoError(t, err)
	return r
}

// buildSegment merges one-document segments holding bodies into segment
// name and returns it.
func buildSegment(t *testing.T, dir store.Directory, name string, opts Options, bodies ...string) SegmentInfo {
	t.Helper()
	merger := NewSegmentMerger(dir, name, logger.Discard())
	var parts []SegmentInfo
	for i, body := range bodies {
		part := writeDoc(t, dir, fmt.Sprintf("%s_p%d", name, i), NewDocument(
			Keyword("id", fmt.Sprintf("%s-%d", name, i)),
			Text("body", body),
		))
		parts = append(parts, part)
		merger.Add(openSegment(t, part, opts))
	}
	count, err := merger.Merge()
	require.NoError(t, err)
	require.NoError(t, merger.CloseReaders())
	for _, part := range parts {
		for _, f := range SegmentFiles(part.Name) {
			require.NoError(t, dir.Delete(f))
		}
		opts.Cache.EvictSegment(part.Name, dir)
	}
	require.Equal(t, len(bodies), count)
	return SegmentInfo{Name: name, DocCount: count, Dir: dir}
}

// commitInfos writes a segments file listing infos.
func commitInfos(t *testing.T, dir store.Directory, opts Options, infos ...SegmentInfo) *SegmentInfos {
	t.Helper()
	sis := NewSegmentInfos()
	for _, info := range infos {
		sis.Add(info)
	}
	tok, err := commitlock.Acquire(opts.Lock)
	require.NoError(t, err)
	defer tok.Release()
	if v, err := ReadVersion(dir); err == nil {
		sis.Version = v
	}
	require.NoError(t, sis.Write(dir, tok, opts.Cache))
	return sis
}

// postings collects the documents of t.
func postings(t *testing.T, r IndexReader, term Term) []int {
	t.Helper()
	td, err := r.TermDocs()
	require.NoError(t, err)
	defer td.Close()
	require.NoError(t, td.Seek(term))
	var docs []int
	for {
		ok, err := td.Next()
		require.NoError(t, err)
		if !ok {
			return docs
		}
		docs = append(docs, td.Doc())
	}
}

// allTerms enumerates every term of r with its docFreq.
func allTerms(t *testing.T, r IndexReader) map[Term]int {
	t.Helper()
	e, err := r.Terms()
	require.NoError(t, err)
	defer e.Close()
	terms := make(map[Term]int)
	for {
		ok, err := e.Next()
		require.NoError(t, err)
		if !ok {
			return terms
		}
		terms[e.Term()] = e.DocFreq()
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
