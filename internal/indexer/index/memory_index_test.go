package index

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
)

func field(name string, terms ...string) AnalyzedField {
	pos := make([]int, len(terms))
	for i := range terms {
		pos[i] = i
	}
	return AnalyzedField{Name: name, Terms: terms, Pos: pos, Length: len(terms)}
}

func TestAddDocumentBuildsPostings(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(DocEntry{ID: 1, FieldLengths: map[string]int{"body": 3}},
		[]AnalyzedField{field("body", "go", "search", "go")})
	mi.AddDocument(DocEntry{ID: 2, FieldLengths: map[string]int{"body": 1}},
		[]AnalyzedField{field("body", "go")})

	got := mi.Search("body", "go")
	want := PostingList{
		{DocID: 1, Frequency: 2, Positions: []int{0, 2}},
		{DocID: 2, Frequency: 1, Positions: []int{0}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Search(body, go) = %+v, want %+v", got, want)
	}
	if mi.Search("title", "go") != nil {
		t.Error("terms must be scoped to their field")
	}
	if mi.DocCount() != 2 {
		t.Errorf("DocCount() = %d, want 2", mi.DocCount())
	}
	if ids := mi.DocIDs(); ids.GetCardinality() != 2 || !ids.Contains(1) || !ids.Contains(2) {
		t.Errorf("DocIDs() = %v", ids.ToArray())
	}
}

func TestSnapshotIsSorted(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddDocument(DocEntry{ID: 3}, []AnalyzedField{field("title", "zeta", "alpha")})
	mi.AddDocument(DocEntry{ID: 1}, []AnalyzedField{field("body", "alpha"), field("title", "alpha")})
	// Out of order on purpose: concurrent writers can append in any ID order.
	mi.AddTerm("body", "alpha", 2, 7)

	snap := mi.Snapshot()
	var keys []TermKey
	for _, e := range snap.Entries {
		keys = append(keys, e.TermKey)
		for i := 1; i < len(e.Postings); i++ {
			if e.Postings[i-1].DocID >= e.Postings[i].DocID {
				t.Errorf("%v: postings not strictly increasing: %+v", e.TermKey, e.Postings)
			}
		}
	}
	wantKeys := []TermKey{
		{"body", "alpha"},
		{"title", "alpha"},
		{"title", "zeta"},
	}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Errorf("keys = %v, want %v", keys, wantKeys)
	}
	var ids []document.ID
	for _, d := range snap.Docs {
		ids = append(ids, d.ID)
	}
	if !reflect.DeepEqual(ids, []document.ID{1, 3}) {
		t.Errorf("doc ids = %v", ids)
	}
}

func TestSnapshotFoldsDuplicatePostings(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddTerm("f", "x", 5, 1)
	mi.AddTerm("f", "x", 6, 0)
	mi.AddTerm("f", "x", 5, 0)

	got := mi.Snapshot().Entries[0].Postings
	want := PostingList{
		{DocID: 5, Frequency: 2, Positions: []int{0, 1}},
		{DocID: 6, Frequency: 1, Positions: []int{0}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSnapshotIsIndependentOfLaterWrites(t *testing.T) {
	mi := NewMemoryIndex()
	mi.AddTerm("f", "x", 1, 0)
	snap := mi.Snapshot()
	mi.AddTerm("f", "x", 1, 4)
	if got := snap.Entries[0].Postings[0].Positions; !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("snapshot changed after write: %v", got)
	}
}

func TestCurrentSizeAndReset(t *testing.T) {
	mi := NewMemoryIndex()
	if mi.CurrentSize() != 0 {
		t.Fatalf("empty index has size %d", mi.CurrentSize())
	}
	mi.AddDocument(DocEntry{ID: 1, Stored: map[string]string{"name": "Stefano"}},
		[]AnalyzedField{field("name", "stefano")})
	one := mi.CurrentSize()
	if one <= 0 {
		t.Fatalf("size after one doc = %d", one)
	}
	mi.AddDocument(DocEntry{ID: 2}, []AnalyzedField{field("name", "stefano")})
	if mi.CurrentSize() <= one {
		t.Error("size must grow with every document")
	}
	mi.Reset()
	if mi.CurrentSize() != 0 || mi.DocCount() != 0 || !mi.Snapshot().Empty() {
		t.Error("Reset did not clear the buffer")
	}
}

func TestConcurrentAddDocument(t *testing.T) {
	mi := NewMemoryIndex()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := document.ID(w*100 + i + 1)
				mi.AddDocument(DocEntry{ID: id}, []AnalyzedField{field("body", "shared", "doc")})
			}
		}(w)
	}
	wg.Wait()
	list := mi.Search("body", "shared")
	if len(list) != 800 {
		t.Fatalf("postings = %d, want 800", len(list))
	}
	for _, p := range list {
		if p.Frequency != 1 {
			t.Fatalf("doc %d frequency = %d, postings were interleaved", p.DocID, p.Frequency)
		}
	}
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := NewMemoryIndex()
	f := field("body", "this", "is", "a", "benchmark", "document", "with", "several", "terms")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.AddDocument(DocEntry{ID: document.ID(i + 1)}, []AnalyzedField{f})
	}
}

func BenchmarkMemoryIndexSnapshot(b *testing.B) {
	mi := NewMemoryIndex()
	for i := 0; i < 10000; i++ {
		mi.AddDocument(DocEntry{ID: document.ID(i + 1)},
			[]AnalyzedField{field("body", "search", "engine", fmt.Sprintf("t%d", i%500))})
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mi.Snapshot()
	}
}
