package index

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
)

const benchBody = "segment merges keep the number of open files bounded while postings stay sorted by document"

func benchWriter(b *testing.B, opts Options) *IndexWriter {
	b.Helper()
	w, err := NewIndexWriter(benchDir(b), true, opts)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { w.Close() })
	return w
}

func BenchmarkAddDocument(b *testing.B) {
	w := benchWriter(b, testOptions())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		doc := NewDocument(Text("title", "bench"), Text("body", benchBody))
		if err := w.AddDocument(fmt.Sprintf("doc-%d", i), doc); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTermLookup measures a postings walk over an optimized index of
// 5000 documents.
func BenchmarkTermLookup(b *testing.B) {
	opts := testOptions()
	w := benchWriter(b, opts)
	for i := 0; i < 5000; i++ {
		if err := w.AddDocument(fmt.Sprint(i), NewDocument(Text("body", benchBody))); err != nil {
			b.Fatal(err)
		}
	}
	if err := w.Optimize(); err != nil {
		b.Fatal(err)
	}
	r, err := OpenReader(w.Directory(), opts)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	term := NewTerm("body", "open")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		td, err := r.TermDocs()
		if err != nil {
			b.Fatal(err)
		}
		if err := td.Seek(term); err != nil {
			b.Fatal(err)
		}
		n := 0
		for {
			ok, err := td.Next()
			if err != nil {
				b.Fatal(err)
			}
			if !ok {
				break
			}
			n++
		}
		td.Close()
		if n != 5000 {
			b.Fatalf("got %d postings", n)
		}
	}
}

func BenchmarkOptimize(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				w := benchWriter(b, testOptions())
				for d := 0; d < size; d++ {
					if err := w.AddDocument(fmt.Sprint(d), NewDocument(Text("body", benchBody))); err != nil {
						b.Fatal(err)
					}
				}
				b.StartTimer()
				if err := w.Optimize(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func benchDir(b *testing.B) *store.FSDirectory {
	b.Helper()
	dir, err := store.NewFSDirectory(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	return dir
}
