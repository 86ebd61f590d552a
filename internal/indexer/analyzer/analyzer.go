// Package analyzer turns field text into a stream of normalised tokens. It
// splits on non-alphanumeric boundaries, applies NFKC normalisation and
// lower-casing, drops short tokens and stop-words, and optionally stems.
//
// An Analyzer holds no mutable state after construction, so one instance is
// shared by the indexer and the query parser and may be used concurrently.
package analyzer

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// Token is a single normalised term. Offsets are byte offsets into the
// analysed text; Position counts every word seen, including the ones that
// were filtered out, so phrase matching sees the same gaps on both sides.
type Token struct {
	Text        string
	StartOffset int
	EndOffset   int
	Position    int
}

type Analyzer struct {
	cfg       config.AnalyzerConfig
	stopWords map[string]struct{}
	minLen    int
	lowercase bool
	stem      func(string) string
}

// New builds an Analyzer from cfg. Stop-words are normalised with the same
// rules as tokens so that "The" in the list still removes "the".
func New(cfg config.AnalyzerConfig) (*Analyzer, error) {
	a := &Analyzer{
		cfg:       cfg,
		stopWords: make(map[string]struct{}, len(cfg.StopWords)),
		minLen:    cfg.MinTokenLength,
		lowercase: cfg.Lowercase,
	}
	switch cfg.Stemmer {
	case "", "none":
	case "english":
		a.stem = func(w string) string { return english.Stem(w, false) }
	default:
		return nil, apperrors.Newf(apperrors.ErrValidation, "unknown stemmer %q", cfg.Stemmer)
	}
	for _, w := range cfg.StopWords {
		a.stopWords[a.normalize(w)] = struct{}{}
	}
	return a, nil
}

// Default returns an analyzer with the default configuration.
func Default() *Analyzer {
	a, err := New(config.DefaultAnalyzerConfig())
	if err != nil {
		panic(fmt.Sprintf("default analyzer: %v", err))
	}
	return a
}

// Config returns the configuration the analyzer was built from.
func (a *Analyzer) Config() config.AnalyzerConfig {
	return a.cfg
}

// Analyze returns a lazy token sequence for text. Ranging over it twice
// yields the same tokens.
func (a *Analyzer) Analyze(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		for start, end := range words(text) {
			position := pos
			pos++
			term := a.normalize(text[start:end])
			if term == "" || utf8.RuneCountInString(term) < a.minLen {
				continue
			}
			if _, stop := a.stopWords[term]; stop {
				continue
			}
			if a.stem != nil {
				term = a.stem(term)
				if term == "" {
					continue
				}
			}
			if !yield(Token{Text: term, StartOffset: start, EndOffset: end, Position: position}) {
				return
			}
		}
	}
}

// Tokens collects Analyze into a slice.
func (a *Analyzer) Tokens(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	for t := range a.Analyze(text) {
		tokens = append(tokens, t)
	}
	return tokens
}

func (a *Analyzer) normalize(word string) string {
	if !norm.NFKC.IsNormalString(word) {
		word = norm.NFKC.String(word)
	}
	if a.lowercase {
		word = strings.ToLower(word)
	}
	return word
}

// words yields the byte ranges of maximal runs of letters, digits and
// combining marks. Invalid UTF-8 bytes act as separators.
func words(text string) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		start := -1
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			inWord := !(r == utf8.RuneError && size <= 1) && isWordRune(r)
			if inWord && start < 0 {
				start = i
			} else if !inWord && start >= 0 {
				if !yield(start, i) {
					return
				}
				start = -1
			}
			i += size
		}
		if start >= 0 {
			yield(start, len(text))
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.M, r)
}
