package index

import (
	"io"
	"strings"
)

// Field is one named value of a Document. A value is either a string or,
// for fields that are only indexed, a reader.
type Field struct {
	Name      string
	value     string
	reader    io.Reader
	Stored    bool
	Indexed   bool
	Tokenized bool
	Boost     float32
}

// NewField builds a field with explicit flags.
func NewField(name, value string, stored, indexed, tokenized bool) *Field {
	return &Field{
		Name:      name,
		value:     value,
		Stored:    stored,
		Indexed:   indexed,
		Tokenized: tokenized,
		Boost:     1,
	}
}

// Keyword is stored and indexed as a single term.
func Keyword(name, value string) *Field {
	return NewField(name, value, true, true, false)
}

// Text is stored, tokenized and indexed.
func Text(name, value string) *Field {
	return NewField(name, value, true, true, true)
}

// TextReader is tokenized and indexed from r but not stored.
func TextReader(name string, r io.Reader) *Field {
	return &Field{
		Name:      name,
		reader:    r,
		Indexed:   true,
		Tokenized: true,
		Boost:     1,
	}
}

// UnIndexed is stored only.
func UnIndexed(name, value string) *Field {
	return NewField(name, value, true, false, false)
}

// UnStored is tokenized and indexed but not stored.
func UnStored(name, value string) *Field {
	return NewField(name, value, false, true, true)
}

// Value returns the string value; it is empty for reader fields.
func (f *Field) Value() string { return f.value }

// Reader returns the value as a stream.
func (f *Field) Reader() io.Reader {
	if f.reader != nil {
		return f.reader
	}
	return strings.NewReader(f.value)
}

func (f *Field) IsReader() bool { return f.reader != nil }

// Document is an ordered list of fields. Field names may repeat.
type Document struct {
	fields []*Field
	Boost  float32
}

func NewDocument(fields ...*Field) *Document {
	return &Document{fields: fields, Boost: 1}
}

func (d *Document) Add(f *Field) { d.fields = append(d.fields, f) }

func (d *Document) Fields() []*Field { return d.fields }

func (d *Document) Len() int { return len(d.fields) }

// GetField returns the first field named name.
func (d *Document) GetField(name string) *Field {
	for _, f := range d.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Get returns the value of the first field named name, or "".
func (d *Document) Get(name string) string {
	if f := d.GetField(name); f != nil && !f.IsReader() {
		return f.value
	}
	return ""
}

// Values returns the string values of every field named name.
func (d *Document) Values(name string) []string {
	var values []string
	for _, f := range d.fields {
		if f.Name == name && !f.IsReader() {
			values = append(values, f.value)
		}
	}
	return values
}
