// Package tokenizer turns field text into the tagged token stream consumed by
// the document inverter. Text is split into word, punctuation and whitespace
// segments with Unicode word-boundary rules; inline language markers of the
// form "[lang=xx]" produce Lang tokens, and words inside URLs are flagged as
// link text. Words are lower-cased and, for languages with a stemmer, carry
// a stemmed variant.
package tokenizer

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/blevesearch/segment"
)

// Kind tags a token.
type Kind int

const (
	Word Kind = iota
	Punctuation
	Whitespace
	Lang
)

func (k Kind) String() string {
	switch k {
	case Word:
		return "word"
	case Punctuation:
		return "punct"
	case Whitespace:
		return "space"
	case Lang:
		return "lang"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultLanguage is active at the start of every stream.
const DefaultLanguage = "en"

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is one element of a token stream.
type Token struct {
	Kind Kind
	// Text is the raw segment text; for Lang tokens it is the language code.
	Text string
	// Term is the normalized (lower-cased) word. Empty for non-words.
	Term string
	// Stem is the stemmed variant of Term, empty when stemming leaves the
	// word unchanged or the active language has no stemmer.
	Stem string
	// Link marks words that are part of a URL.
	Link bool
}

// Stream is a lazy token sequence over one field value.
type Stream interface {
	// Next returns the next token; ok is false at the end of input or on
	// error.
	Next() (tok Token, ok bool)
	// SetLanguage switches stemming and stop words for subsequent words.
	SetLanguage(lang string)
	Err() error
}

// Tokenizer creates streams over field values.
type Tokenizer interface {
	Tokens(field string, r io.Reader) Stream
}

// Stemmer maps a normalized word to its stem.
type Stemmer func(term string) string

// Analyzer is the default Tokenizer.
type Analyzer struct {
	stemmers  map[string]Stemmer
	stopWords map[string]map[string]struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStemmer registers a stemmer for lang, replacing any previous one.
func WithStemmer(lang string, s Stemmer) Option {
	return func(a *Analyzer) { a.stemmers[lang] = s }
}

// WithoutStopWords keeps every word, including English stop words.
func WithoutStopWords() Option {
	return func(a *Analyzer) { a.stopWords = map[string]map[string]struct{}{} }
}

// New returns an Analyzer with the English Porter stemmer and English stop
// words.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		stemmers: map[string]Stemmer{
			"en": porterstemmer.StemString,
		},
		stopWords: map[string]map[string]struct{}{
			"en": englishStopWords,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var spanPattern = regexp.MustCompile(`\[lang=([A-Za-z_-]{2,10})\]|https?://[^\s<>"]+`)

type spanKind int

const (
	spanText spanKind = iota
	spanLink
	spanLang
)

type span struct {
	kind spanKind
	text []byte
}

// Tokens reads the whole value and returns a stream over it.
func (a *Analyzer) Tokens(field string, r io.Reader) Stream {
	data, err := io.ReadAll(r)
	s := &stream{analyzer: a, lang: DefaultLanguage, err: err}
	if err != nil {
		s.err = fmt.Errorf("reading field %s: %w", field, err)
		return s
	}
	s.spans = splitSpans(data)
	return s
}

func splitSpans(data []byte) []span {
	var spans []span
	last := 0
	for _, m := range spanPattern.FindAllSubmatchIndex(data, -1) {
		if m[0] > last {
			spans = append(spans, span{kind: spanText, text: data[last:m[0]]})
		}
		if m[2] >= 0 {
			spans = append(spans, span{kind: spanLang, text: data[m[2]:m[3]]})
		} else {
			spans = append(spans, span{kind: spanLink, text: data[m[0]:m[1]]})
		}
		last = m[1]
	}
	if last < len(data) {
		spans = append(spans, span{kind: spanText, text: data[last:]})
	}
	return spans
}

type stream struct {
	analyzer *Analyzer
	spans    []span
	cur      *segment.Segmenter
	curLink  bool
	lang     string
	err      error
}

func (s *stream) SetLanguage(lang string) {
	s.lang = strings.ToLower(lang)
}

func (s *stream) Err() error { return s.err }

func (s *stream) Next() (Token, bool) {
	for s.err == nil {
		if s.cur != nil {
			if s.cur.Segment() {
				tok, keep := s.token(s.cur.Bytes(), s.cur.Type())
				if keep {
					return tok, true
				}
				continue
			}
			if err := s.cur.Err(); err != nil {
				s.err = fmt.Errorf("segmenting text: %w", err)
				return Token{}, false
			}
			s.cur = nil
		}
		if len(s.spans) == 0 {
			return Token{}, false
		}
		sp := s.spans[0]
		s.spans = s.spans[1:]
		if sp.kind == spanLang {
			return Token{Kind: Lang, Text: strings.ToLower(string(sp.text))}, true
		}
		s.cur = segment.NewWordSegmenter(bytes.NewReader(sp.text))
		s.curLink = sp.kind == spanLink
	}
	return Token{}, false
}

func (s *stream) token(raw []byte, typ int) (Token, bool) {
	text := string(raw)
	if typ == segment.None {
		if strings.TrimFunc(text, unicode.IsSpace) == "" {
			return Token{Kind: Whitespace, Text: text}, true
		}
		return Token{Kind: Punctuation, Text: text}, true
	}
	term := strings.ToLower(text)
	if stops, ok := s.analyzer.stopWords[s.lang]; ok && !s.curLink {
		if _, stop := stops[term]; stop {
			return Token{}, false
		}
	}
	tok := Token{Kind: Word, Text: text, Term: term, Link: s.curLink}
	if typ == segment.Letter {
		if stem, ok := s.analyzer.stemmers[s.lang]; ok {
			if st := stem(term); st != "" && st != term {
				tok.Stem = st
			}
		}
	}
	return tok, true
}

// Tokenize returns the non-link words of text with the default Analyzer,
// in order. It is used to normalize lookup terms the same way indexed text
// is normalized.
func Tokenize(text string) []Token {
	st := New().Tokens("", strings.NewReader(text))
	var tokens []Token
	for {
		tok, ok := st.Next()
		if !ok {
			break
		}
		if tok.Kind == Lang {
			st.SetLanguage(tok.Text)
			continue
		}
		if tok.Kind == Word && !tok.Link {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
