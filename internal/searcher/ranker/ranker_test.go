package ranker

import (
	"math"
	"testing"
)

func TestBM25(t *testing.T) {
	s := BM25{}
	base := TermStats{Term: "rossi", TermFreq: 1, DocFreq: 2, TotalDocs: 10, FieldLength: 3, AvgFieldLength: 3}

	got := s.Score(base)
	idf := math.Log((10-2)/(2+0.5) + 1)
	if want := idf * (1 * 2.2) / (1 + 1.2); math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, want)
	}

	more := base
	more.TermFreq = 3
	if s.Score(more) <= got {
		t.Error("higher term frequency should score higher")
	}

	rare := base
	rare.DocFreq = 1
	if s.Score(rare) <= got {
		t.Error("rarer term should score higher")
	}

	long := base
	long.FieldLength = 12
	if s.Score(long) >= got {
		t.Error("longer field should score lower")
	}

	empty := base
	empty.AvgFieldLength = 0
	if s.Score(empty) != 0 {
		t.Error("zero average length should score 0")
	}
}

func TestBM25PositiveForCommonTerm(t *testing.T) {
	got := BM25{}.Score(TermStats{TermFreq: 1, DocFreq: 10, TotalDocs: 10, FieldLength: 1, AvgFieldLength: 1})
	if got <= 0 {
		t.Errorf("term in every document scored %v", got)
	}
}

func TestTFIDF(t *testing.T) {
	s := TFIDF{}
	base := TermStats{TermFreq: 1, DocFreq: 2, TotalDocs: 10, FieldLength: 4}
	got := s.Score(base)
	if got <= 0 {
		t.Fatalf("Score = %v", got)
	}
	more := base
	more.TermFreq = 4
	if s.Score(more) <= got {
		t.Error("higher term frequency should score higher")
	}
	if s.Score(TermStats{}) != 0 {
		t.Error("zero stats should score 0")
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", "bm25", false},
		{"bm25", "bm25", false},
		{"BM25", "bm25", false},
		{"tfidf", "tfidf", false},
		{"tf-idf", "tfidf", false},
		{"pagerank", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := FromName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FromName(%q) error = %v", tt.name, err)
			}
			if err == nil && s.Name() != tt.want {
				t.Errorf("FromName(%q) = %s, want %s", tt.name, s.Name(), tt.want)
			}
		})
	}
}

func BenchmarkBM25(b *testing.B) {
	s := BM25{}
	st := TermStats{TermFreq: 2, DocFreq: 100, TotalDocs: 100000, FieldLength: 5, AvgFieldLength: 4.2}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s.Score(st)
	}
}
