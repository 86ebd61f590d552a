package merger

import (
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"
)

func TestTopKOrder(t *testing.T) {
	tk := New(3)
	for _, d := range []ScoredDoc{
		{DocID: 1, Score: 0.5},
		{DocID: 2, Score: 2.0},
		{DocID: 3, Score: 1.0},
		{DocID: 4, Score: 2.0},
		{DocID: 5, Score: 0.1},
	} {
		tk.Push(d)
	}
	got := tk.Results()
	want := []ScoredDoc{{DocID: 2, Score: 2.0}, {DocID: 4, Score: 2.0}, {DocID: 3, Score: 1.0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTopKTiesPreferLowerID(t *testing.T) {
	tk := New(2)
	for id := uint64(10); id >= 1; id-- {
		tk.Push(ScoredDoc{DocID: id, Score: 1})
	}
	got := tk.Results()
	if got[0].DocID != 1 || got[1].DocID != 2 {
		t.Errorf("got %v", got)
	}
}

func TestTopKZeroLimit(t *testing.T) {
	tk := New(0)
	tk.Push(ScoredDoc{DocID: 1, Score: 1})
	if got := tk.Results(); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestTopKMatchesFullSort(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	all := make([]ScoredDoc, 500)
	for i := range all {
		all[i] = ScoredDoc{DocID: uint64(i + 1), Score: float64(r.IntN(20))}
	}
	tk := New(25)
	for _, d := range all {
		tk.Push(d)
	}
	sorted := slices.Clone(all)
	Sort(sorted)
	if got := tk.Results(); !reflect.DeepEqual(got, sorted[:25]) {
		t.Errorf("top-k differs from sorted prefix:\n got %v\nwant %v", got, sorted[:25])
	}
}

func TestMerge(t *testing.T) {
	a := []ScoredDoc{{DocID: 1, Score: 3}, {DocID: 2, Score: 1}}
	b := []ScoredDoc{{DocID: 7, Score: 2}}
	got := Merge([][]ScoredDoc{a, b}, 2)
	want := []ScoredDoc{{DocID: 1, Score: 3}, {DocID: 7, Score: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func BenchmarkTopK(b *testing.B) {
	docs := make([]ScoredDoc, 10000)
	for i := range docs {
		docs[i] = ScoredDoc{DocID: uint64(i), Score: float64(i%97) * 0.37}
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		tk := New(10)
		for _, d := range docs {
			tk.Push(d)
		}
		tk.Results()
	}
}
