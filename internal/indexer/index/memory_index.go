// Package index holds the in-memory inverted index buffer that collects
// postings between flushes.
package index

import (
	"slices"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

const (
	listOverhead    = 64
	postingOverhead = 40
	positionSize    = 8
	docOverhead     = 64
)

type MemoryIndex struct {
	mu       sync.RWMutex
	postings map[TermKey]PostingList
	docs     map[document.ID]*DocEntry
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[TermKey]PostingList),
		docs:     make(map[document.ID]*DocEntry),
	}
}

// AddTerm appends one occurrence of (field, term) in docID at position.
func (m *MemoryIndex) AddTerm(field, term string, docID document.ID, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addTermLocked(TermKey{Field: field, Term: term}, docID, position)
}

func (m *MemoryIndex) addTermLocked(key TermKey, docID document.ID, position int) {
	list, exists := m.postings[key]
	if !exists {
		m.size += int64(len(key.Field) + len(key.Term) + listOverhead)
	}
	if n := len(list); n > 0 && list[n-1].DocID == docID {
		list[n-1].Frequency++
		list[n-1].Positions = append(list[n-1].Positions, position)
	} else {
		list = append(list, Posting{
			DocID:     docID,
			Frequency: 1,
			Positions: []int{position},
		})
		m.size += postingOverhead
	}
	m.postings[key] = list
	m.size += positionSize
}

// AddDocument adds every term of an analysed document under one lock so its
// postings are never interleaved with another document's.
func (m *MemoryIndex) AddDocument(entry DocEntry, fields []AnalyzedField) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fields {
		for i, term := range f.Terms {
			m.addTermLocked(TermKey{Field: f.Name, Term: term}, entry.ID, f.Pos[i])
		}
	}
	stored := entry
	m.docs[entry.ID] = &stored
	m.size += docOverhead
	for name, v := range entry.Stored {
		m.size += int64(len(name) + len(v))
	}
}

// CurrentSize is an estimate of the buffer's memory footprint in bytes.
func (m *MemoryIndex) CurrentSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// DocIDs returns the IDs currently buffered.
func (m *MemoryIndex) DocIDs() *roaring64.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := roaring64.New()
	for id := range m.docs {
		b.Add(uint64(id))
	}
	return b
}

// Search returns the buffered postings for (field, term) ordered by DocID.
// Buffered documents are not visible to queries; this is used by tests and
// diagnostics.
func (m *MemoryIndex) Search(field, term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedCopy(m.postings[TermKey{Field: field, Term: term}])
}

// Snapshot returns the buffer sorted by (field, term) with each postings list
// sorted by DocID. Concurrent adds may have appended out of ID order, and an
// ID that was added twice through AddTerm is folded into one posting.
func (m *MemoryIndex) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.postings))
	for key, list := range m.postings {
		entries = append(entries, TermEntry{
			TermKey:  key,
			Postings: sortedCopy(list),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TermKey.Less(entries[j].TermKey)
	})
	docs := make([]DocEntry, 0, len(m.docs))
	for _, d := range m.docs {
		docs = append(docs, *d)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return &Snapshot{Entries: entries, Docs: docs}
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = make(map[TermKey]PostingList)
	m.docs = make(map[document.ID]*DocEntry)
	m.size = 0
}

func sortedCopy(list PostingList) PostingList {
	if len(list) == 0 {
		return nil
	}
	out := make(PostingList, 0, len(list))
	for _, p := range list {
		p.Positions = slices.Clone(p.Positions)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DocID < out[j].DocID
	})
	folded := out[:1]
	for _, p := range out[1:] {
		last := &folded[len(folded)-1]
		if p.DocID == last.DocID {
			last.Frequency += p.Frequency
			last.Positions = append(last.Positions, p.Positions...)
			slices.Sort(last.Positions)
			continue
		}
		folded = append(folded, p)
	}
	return folded
}
