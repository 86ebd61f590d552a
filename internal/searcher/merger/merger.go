// Package merger keeps the best K scored documents seen so far.
package merger

import (
	"container/heap"
	"slices"
)

// ScoredDoc is a document ID with its accumulated score.
type ScoredDoc struct {
	DocID uint64  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TopK is a bounded min-heap: the root is the weakest of the kept documents,
// so a candidate only has to beat the root to get in. Higher scores win; equal
// scores go to the lower ID. The zero value is not usable; use New.
type TopK struct {
	limit int
	h     scoredDocHeap
}

func New(limit int) *TopK {
	if limit < 0 {
		limit = 0
	}
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, min(limit, 1024))}
}

// Push offers a candidate.
func (t *TopK) Push(doc ScoredDoc) {
	if t.limit == 0 {
		return
	}
	if t.h.Len() < t.limit {
		heap.Push(&t.h, doc)
		return
	}
	if worse(doc, t.h[0]) || doc == t.h[0] {
		return
	}
	t.h[0] = doc
	heap.Fix(&t.h, 0)
}

func (t *TopK) Len() int { return t.h.Len() }

// Results drains the collector and returns the kept documents best first.
func (t *TopK) Results() []ScoredDoc {
	result := make([]ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ScoredDoc)
	}
	return result
}

// Merge combines several result lists into the best limit documents.
func Merge(lists [][]ScoredDoc, limit int) []ScoredDoc {
	t := New(limit)
	for _, list := range lists {
		for _, doc := range list {
			t.Push(doc)
		}
	}
	return t.Results()
}

// Sort orders docs best first, in place.
func Sort(docs []ScoredDoc) {
	slices.SortFunc(docs, func(a, b ScoredDoc) int {
		switch {
		case worse(b, a):
			return -1
		case worse(a, b):
			return 1
		}
		return 0
	})
}

// worse reports whether a ranks below b.
func worse(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
