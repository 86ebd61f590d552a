package index

import "github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"

// Posting records one document's occurrences of a term.
type Posting struct {
	DocID     document.ID
	Frequency int
	Positions []int
}

// PostingList is ordered by DocID, strictly increasing.
type PostingList []Posting

// TermKey scopes a term to the field it was indexed under.
type TermKey struct {
	Field string
	Term  string
}

// Less orders keys by field, then term.
func (k TermKey) Less(o TermKey) bool {
	if k.Field != o.Field {
		return k.Field < o.Field
	}
	return k.Term < o.Term
}

type TermEntry struct {
	TermKey
	Postings PostingList
}

// DocEntry is the per-document data kept next to the postings: token counts
// per field for length normalisation and the raw text of stored fields.
type DocEntry struct {
	ID           document.ID       `json:"id"`
	FieldLengths map[string]int    `json:"len"`
	Stored       map[string]string `json:"stored,omitempty"`
}

// AnalyzedField is a field after analysis, ready to be added to the buffer.
type AnalyzedField struct {
	Name   string
	Terms  []string
	Pos    []int
	Length int
}

// Snapshot is the sorted, immutable form of the buffer handed to the
// segment writer.
type Snapshot struct {
	Entries []TermEntry
	Docs    []DocEntry
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Docs) == 0
}
