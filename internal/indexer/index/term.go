package index

import "strings"

// Term is a word of text in a named field. Terms order by field, then by
// text, byte-wise. The zero Term sorts before every other term.
type Term struct {
	Field string
	Text  string
}

func NewTerm(field, text string) Term {
	return Term{Field: field, Text: text}
}

// Compare returns -1, 0 or +1 as t sorts before, equal to or after o.
func (t Term) Compare(o Term) int {
	if c := strings.Compare(t.Field, o.Field); c != 0 {
		return c
	}
	return strings.Compare(t.Text, o.Text)
}

func (t Term) Less(o Term) bool { return t.Compare(o) < 0 }

// IsNull reports whether t is the zero Term.
func (t Term) IsNull() bool { return t == Term{} }

func (t Term) String() string { return t.Field + ":" + t.Text }

// TermInfo locates the postings of one term.
type TermInfo struct {
	DocFreq     uint32
	FreqPointer uint64
	ProxPointer uint64
}
