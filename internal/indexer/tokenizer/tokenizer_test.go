package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, st Stream) []Token {
	t.Helper()
	var out []Token
	for {
		tok, ok := st.Next()
		if !ok {
			break
		}
		if tok.Kind == Lang {
			st.SetLanguage(tok.Text)
		}
		out = append(out, tok)
	}
	require.NoError(t, st.Err())
	return out
}

func words(tokens []Token) []string {
	var out []string
	for _, tok := range tokens {
		if tok.Kind == Word {
			out = append(out, tok.Term)
		}
	}
	return out
}

func TestTokensKinds(t *testing.T) {
	tokens := collect(t, New().Tokens("body", strings.NewReader("Hello, World")))
	require.Len(t, tokens, 4)
	assert.Equal(t, Word, tokens[0].Kind)
	assert.Equal(t, "Hello", tokens[0].Text)
	assert.Equal(t, "hello", tokens[0].Term)
	assert.Equal(t, Punctuation, tokens[1].Kind)
	assert.Equal(t, Whitespace, tokens[2].Kind)
	assert.Equal(t, "world", tokens[3].Term)
}

func TestStemVariant(t *testing.T) {
	tokens := collect(t, New().Tokens("body", strings.NewReader("running fox")))
	require.Equal(t, []string{"running", "fox"}, words(tokens))
	assert.Equal(t, "run", tokens[0].Stem)
	assert.Empty(t, tokens[2].Stem, "unchanged stems are not repeated")
}

func TestNumbersAreNotStemmed(t *testing.T) {
	tokens := collect(t, New().Tokens("body", strings.NewReader("2024")))
	require.Len(t, tokens, 1)
	assert.Equal(t, "2024", tokens[0].Term)
	assert.Empty(t, tokens[0].Stem)
}

func TestStopWords(t *testing.T) {
	text := "the quick fox and the dog"
	assert.Equal(t, []string{"quick", "fox", "dog"}, words(collect(t, New().Tokens("", strings.NewReader(text)))))
	assert.Equal(t, []string{"the", "quick", "fox", "and", "the", "dog"},
		words(collect(t, New(WithoutStopWords()).Tokens("", strings.NewReader(text)))))
}

func TestLinksAreFlagged(t *testing.T) {
	tokens := collect(t, New().Tokens("body", strings.NewReader("see https://example.com/page now")))
	var plain, linked []string
	for _, tok := range tokens {
		if tok.Kind != Word {
			continue
		}
		if tok.Link {
			linked = append(linked, tok.Term)
		} else {
			plain = append(plain, tok.Term)
		}
	}
	assert.Equal(t, []string{"see", "now"}, plain)
	assert.Contains(t, linked, "https")
	assert.Contains(t, linked, "page")
}

func TestLanguageMarker(t *testing.T) {
	tokens := collect(t, New().Tokens("body", strings.NewReader("running [lang=DE] running")))
	var langs []string
	var stems []string
	for _, tok := range tokens {
		switch tok.Kind {
		case Lang:
			langs = append(langs, tok.Text)
		case Word:
			stems = append(stems, tok.Stem)
		}
	}
	assert.Equal(t, []string{"de"}, langs)
	assert.Equal(t, []string{"run", ""}, stems, "no stemmer is registered for de")
}

func TestCustomStemmer(t *testing.T) {
	a := New(WithStemmer("de", func(term string) string { return strings.TrimSuffix(term, "en") }))
	st := a.Tokens("body", strings.NewReader("laufen"))
	st.SetLanguage("de")
	tokens := collect(t, st)
	require.Len(t, tokens, 1)
	assert.Equal(t, "lauf", tokens[0].Stem)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReaderError(t *testing.T) {
	st := New().Tokens("body", failingReader{})
	_, ok := st.Next()
	assert.False(t, ok)
	require.Error(t, st.Err())
	assert.Contains(t, st.Err().Error(), "body")
}

func TestTokenizeSkipsLinksAndPunctuation(t *testing.T) {
	var terms []string
	for _, tok := range Tokenize("Indexing, at http://x.org scale!") {
		terms = append(terms, tok.Term)
	}
	assert.Equal(t, []string{"indexing", "scale"}, terms)
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat(`Information retrieval systems form the backbone of modern search
        infrastructure. These systems combine tokenization, stemming, and stop word
        removal to normalize text into searchable terms. `, 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}

func BenchmarkTokenizeSizes(b *testing.B) {
	texts := map[string]string{
		"short": "The quick brown fox jumps over the lazy dog",
		"long": strings.Repeat(`Inverted indexes map each term to the documents containing it,
			along with positions for phrase queries. Segments are merged in the
			background so readers keep a bounded number of files open. `, 20),
	}
	for name, text := range texts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}
