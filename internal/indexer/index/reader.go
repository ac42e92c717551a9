package index

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"golang.org/x/sync/errgroup"
)

// TermEnum iterates terms in order. An enum returned by Terms is
// positioned before the first term; one returned by TermsFrom is already
// positioned on its first term.
type TermEnum interface {
	Next() (bool, error)
	// Term returns the zero Term when the enum is not on a term.
	Term() Term
	DocFreq() int
	Close() error
}

// TermDocs iterates the live documents containing a term.
type TermDocs interface {
	Seek(t Term) error
	Next() (bool, error)
	Doc() int
	Freq() int
	// Read fills docs and freqs and returns how many entries were set;
	// zero means the postings are exhausted.
	Read(docs, freqs []int) (int, error)
	// SkipTo advances to the first document not before target.
	SkipTo(target int) (bool, error)
	Close() error
}

// TermPositions additionally reports the positions of the term in the
// current document.
type TermPositions interface {
	TermDocs
	// NextPosition returns the next of Freq positions.
	NextPosition() (int, error)
}

// IndexReader is a read view of one segment or of a whole index. Deletions
// made through Delete are committed when the reader is closed.
type IndexReader interface {
	MaxDoc() int
	NumDocs() int
	HasDeletions() bool
	IsDeleted(n int) bool
	Document(n int) (*Document, error)
	// Norms returns one byte per document for field.
	Norms(field string) ([]byte, error)
	Terms() (TermEnum, error)
	TermsFrom(t Term) (TermEnum, error)
	DocFreq(t Term) (int, error)
	TermDocs() (TermDocs, error)
	TermPositions() (TermPositions, error)
	FieldNames(indexed bool) []string
	// Delete marks document n deleted unless the index has been committed
	// since the reader was opened, in which case it does nothing.
	Delete(n int) error
	// DeleteTerm deletes every document containing t and returns how many
	// were deleted.
	DeleteTerm(t Term) (int, error)
	DoDelete(n int) error
	Close() error
}

// OpenReader opens the committed state of the index in dir. A single
// segment index yields a *SegmentReader, anything else a *SegmentsReader.
func OpenReader(dir store.Directory, opts Options) (IndexReader, error) {
	opts = opts.withDefaults(dir)
	tok, err := commitlock.Acquire(opts.Lock)
	if err != nil {
		return nil, err
	}
	defer tok.Release()

	infos, err := ReadSegmentInfos(dir, tok)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", dir.ID(), err)
	}
	if infos.Len() == 1 {
		return openSegmentReader(infos.Info(0), infos.Version, opts)
	}

	readers := make([]*SegmentReader, infos.Len())
	var g errgroup.Group
	for i := 0; i < infos.Len(); i++ {
		g.Go(func() error {
			r, err := openSegmentReader(infos.Info(i), infos.Version, opts)
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range readers {
			if r != nil {
				r.CloseDiscard()
			}
		}
		return nil, fmt.Errorf("opening index %s: %w", dir.ID(), err)
	}
	return newSegmentsReader(dir, readers, infos.Version, opts), nil
}

// isStale reports whether dir has been committed past version.
func isStale(dir store.Directory, version uint32, l *slog.Logger) (bool, error) {
	current, err := ReadVersion(dir)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if current > version {
		l.Warn("ignoring delete on stale reader", "opened_version", version, "current_version", current)
		return true, nil
	}
	return false, nil
}

func deleteTerm(r IndexReader, t Term) (int, error) {
	td, err := r.TermDocs()
	if err != nil {
		return 0, err
	}
	defer td.Close()
	if err := td.Seek(t); err != nil {
		return 0, err
	}
	n := 0
	for {
		ok, err := td.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		if err := r.DoDelete(td.Doc()); err != nil {
			return n, err
		}
		n++
	}
}
