// Package document defines the document model accepted by the indexer: an
// ordered list of named fields, each carrying one of a fixed set of value
// kinds.
package document

import "strconv"

// ID is the internal document identifier. IDs start at 1, increase
// monotonically and are never reused.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind selects how a field value is handled at index time.
type Kind uint8

const (
	// KindText is analysed and indexed; the raw text is dropped.
	KindText Kind = iota
	// KindStoredText is analysed, indexed and its raw text kept in the
	// segment so it can be returned with search hits.
	KindStoredText
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStoredText:
		return "stored_text"
	default:
		return "unknown"
	}
}

type Field struct {
	Name  string
	Value string
	Kind  Kind
}

// Text returns an indexed, non-stored field.
func Text(name, value string) Field {
	return Field{Name: name, Value: value, Kind: KindText}
}

// Stored returns an indexed field whose raw value is kept.
func Stored(name, value string) Field {
	return Field{Name: name, Value: value, Kind: KindStoredText}
}

// Document is an ordered sequence of fields. A field name may repeat; the
// values are then indexed as one field with a position gap between values,
// so a phrase never matches across them.
type Document struct {
	Fields []Field
}

func New(fields ...Field) Document {
	return Document{Fields: fields}
}

// Add appends a field and returns the document for chaining.
func (d Document) Add(f Field) Document {
	d.Fields = append(d.Fields, f)
	return d
}

// Get returns the value of the first field with the given name.
func (d Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
