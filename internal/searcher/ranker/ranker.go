// Package ranker scores individual (term, document) matches. The executor
// sums the scores of every leaf a document matched.
package ranker

import (
	"fmt"
	"math"
	"strings"
)

const (
	k1 = 1.2
	b  = 0.75
)

// TermStats is everything a scorer needs to score one term occurrence.
// DocFreq and TotalDocs are taken from the whole snapshot; FieldLength is the
// token count of the matched field in the document.
type TermStats struct {
	Term           string
	DocID          uint64
	TermFreq       int
	DocFreq        int64
	TotalDocs      int64
	FieldLength    int
	AvgFieldLength float64
}

// Scorer is a ranking formula. Implementations must be safe for concurrent
// use.
type Scorer interface {
	Name() string
	Score(s TermStats) float64
}

// BM25 is Okapi BM25 with k1 = 1.2 and b = 0.75.
type BM25 struct{}

func (BM25) Name() string { return "bm25" }

func (BM25) Score(s TermStats) float64 {
	idf := computeIDF(s.TotalDocs, s.DocFreq)
	return idf * computeTFNorm(float64(s.TermFreq), float64(s.FieldLength), s.AvgFieldLength)
}

// TFIDF is the classic sqrt(tf) * idf^2 weighting with length normalisation.
type TFIDF struct{}

func (TFIDF) Name() string { return "tfidf" }

func (TFIDF) Score(s TermStats) float64 {
	if s.TermFreq <= 0 || s.TotalDocs <= 0 {
		return 0
	}
	idf := 1 + math.Log(float64(s.TotalDocs)/float64(s.DocFreq+1))
	norm := 1.0
	if s.FieldLength > 0 {
		norm = 1 / math.Sqrt(float64(s.FieldLength))
	}
	return math.Sqrt(float64(s.TermFreq)) * idf * idf * norm
}

// FromName returns the scorer registered under name. An empty name selects
// BM25.
func FromName(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", "bm25":
		return BM25{}, nil
	case "tfidf", "tf-idf":
		return TFIDF{}, nil
	}
	return nil, fmt.Errorf("unknown scorer %q", name)
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
