package index

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/tokenizer"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

// SuggestField names both the field that configures suggestions and the
// synthetic field they are indexed under. Its value is a whitespace
// separated list of "field prefix" pairs; every word indexed in field is
// also indexed as prefix+word in SuggestField.
const SuggestField = "suggestfields"

// DocumentWriter inverts a single document into a new one-document
// segment. It is not safe for concurrent use.
type DocumentWriter struct {
	dir            store.Directory
	analyzer       tokenizer.Tokenizer
	similarity     Similarity
	maxFieldLength int

	fieldInfos *FieldInfos
	postings   *postingTable
	lengths    []int
	positions  []int
	boosts     []float32
	present    []bool
}

// NewDocumentWriter returns a writer that indexes at most maxFieldLength
// words per field; a non-positive limit means no limit.
func NewDocumentWriter(dir store.Directory, analyzer tokenizer.Tokenizer, similarity Similarity, maxFieldLength int) *DocumentWriter {
	if maxFieldLength <= 0 {
		maxFieldLength = math.MaxInt
	}
	return &DocumentWriter{
		dir:            dir,
		analyzer:       analyzer,
		similarity:     similarity,
		maxFieldLength: maxFieldLength,
	}
}

func parseSuggestFields(doc *Document) map[string][]string {
	var prefixes map[string][]string
	for _, value := range doc.Values(SuggestField) {
		words := strings.Fields(value)
		for i := 0; i+1 < len(words); i += 2 {
			if prefixes == nil {
				prefixes = make(map[string][]string)
			}
			prefixes[words[i]] = append(prefixes[words[i]], words[i+1])
		}
	}
	return prefixes
}

// AddDocument writes doc as segment in the writer's directory.
func (w *DocumentWriter) AddDocument(segment string, doc *Document) error {
	prefixes := parseSuggestFields(doc)
	var suggest *strings.Builder
	if prefixes != nil {
		suggest = &strings.Builder{}
	}

	w.fieldInfos = NewFieldInfos()
	w.fieldInfos.AddDocument(doc)
	if suggest != nil {
		w.fieldInfos.Add(SuggestField, true)
	}
	if err := w.fieldInfos.Write(w.dir, segment+".fnm"); err != nil {
		return fmt.Errorf("writing field infos of %s: %w", segment, err)
	}

	fields, err := NewFieldsWriter(w.dir, segment, w.fieldInfos)
	if err != nil {
		return fmt.Errorf("creating fields writer for %s: %w", segment, err)
	}
	if err := fields.AddDocument(doc); err != nil {
		fields.Close()
		return fmt.Errorf("storing fields of %s: %w", segment, err)
	}
	if err := fields.Close(); err != nil {
		return fmt.Errorf("closing fields of %s: %w", segment, err)
	}

	n := w.fieldInfos.Size()
	w.postings = newPostingTable()
	w.lengths = make([]int, n)
	w.positions = make([]int, n)
	w.present = make([]bool, n)
	w.boosts = make([]float32, n)
	for i := range w.boosts {
		w.boosts[i] = doc.Boost
	}

	if err := w.invertDocument(doc, prefixes, suggest); err != nil {
		return fmt.Errorf("inverting %s: %w", segment, err)
	}
	if suggest != nil && suggest.Len() > 0 {
		w.invertSuggestions(suggest.String())
	}

	postings := w.postings.sorted()
	if err := w.writePostings(segment, postings); err != nil {
		return err
	}
	if err := w.writeNorms(segment); err != nil {
		return err
	}
	return nil
}

func (w *DocumentWriter) invertDocument(doc *Document, prefixes map[string][]string, suggest *strings.Builder) error {
	for _, f := range doc.Fields() {
		if f.Name == SuggestField || !f.Indexed {
			continue
		}
		num, _ := w.fieldInfos.FieldNumber(f.Name)
		w.present[num] = true
		w.boosts[num] *= f.Boost

		if !f.Tokenized {
			w.postings.add(Term{Field: f.Name, Text: f.Value()}, w.positions[num])
			w.positions[num]++
			w.lengths[num]++
			continue
		}

		stream := w.analyzer.Tokens(f.Name, f.Reader())
		for w.lengths[num] < w.maxFieldLength {
			tok, ok := stream.Next()
			if !ok {
				break
			}
			switch tok.Kind {
			case tokenizer.Lang:
				stream.SetLanguage(tok.Text)
			case tokenizer.Word:
				if tok.Link {
					continue
				}
				pos := w.positions[num]
				w.postings.add(Term{Field: f.Name, Text: tok.Term}, pos)
				if tok.Stem != "" {
					w.postings.add(Term{Field: f.Name, Text: tok.Stem}, pos)
				}
				for _, prefix := range prefixes[f.Name] {
					suggest.WriteString(prefix)
					suggest.WriteString(tok.Term)
					suggest.WriteByte(' ')
				}
				w.positions[num]++
				w.lengths[num]++
			}
		}
		if err := stream.Err(); err != nil {
			return err
		}
	}
	return nil
}

// invertSuggestions indexes every collected suggestion as an untokenized
// term of SuggestField.
func (w *DocumentWriter) invertSuggestions(text string) {
	num, _ := w.fieldInfos.FieldNumber(SuggestField)
	w.present[num] = true
	for _, entry := range strings.Fields(text) {
		if w.lengths[num] >= w.maxFieldLength {
			break
		}
		w.postings.add(Term{Field: SuggestField, Text: entry}, w.positions[num])
		w.positions[num]++
		w.lengths[num]++
	}
}

func (w *DocumentWriter) writePostings(segment string, postings []*Posting) (err error) {
	freq, err := w.dir.CreateOutput(segment + ".frq")
	if err != nil {
		return err
	}
	prox, err := w.dir.CreateOutput(segment + ".prx")
	if err != nil {
		freq.Close()
		return err
	}
	tis, err := NewTermInfosWriter(w.dir, segment, w.fieldInfos)
	if err != nil {
		freq.Close()
		prox.Close()
		return err
	}
	defer func() {
		if cerr := errors.Join(freq.Close(), prox.Close(), tis.Close()); err == nil {
			err = cerr
		}
	}()

	for _, p := range postings {
		ti := TermInfo{
			DocFreq:     1,
			FreqPointer: uint64(freq.FilePointer()),
			ProxPointer: uint64(prox.FilePointer()),
		}
		if !tis.Add(p.Term, ti) {
			return pkgerrors.New(pkgerrors.ErrOutOfOrder, "adding term "+p.Term.String(), segment+".tis")
		}
		if p.Freq == 1 {
			err = store.WriteVInt(freq, 1)
		} else {
			err = errors.Join(store.WriteVInt(freq, 0), store.WriteVInt(freq, uint32(p.Freq)))
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", freq.Name(), err)
		}
		last := 0
		for _, pos := range p.Positions {
			if err := store.WriteVInt(prox, uint32(pos-last)); err != nil {
				return fmt.Errorf("writing %s: %w", prox.Name(), err)
			}
			last = pos
		}
	}
	return nil
}

func (w *DocumentWriter) writeNorms(segment string) (err error) {
	out, err := w.dir.CreateOutput(segment + ".nrm")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	norms := make([]byte, w.fieldInfos.Size())
	for i := range norms {
		if !w.present[i] {
			continue
		}
		name := w.fieldInfos.FieldName(i)
		norms[i] = w.similarity.EncodeNorm(w.boosts[i] * w.similarity.LengthNorm(name, w.lengths[i]))
	}
	if err := out.WriteBytes(norms); err != nil {
		return fmt.Errorf("writing %s: %w", out.Name(), err)
	}
	return nil
}
