// Package search is the embedding API of the engine. A process opens one
// Writer per index directory and any number of Readers, in the same or in
// other processes:
//
//	w, err := search.OpenWriter("data/index", search.DefaultConfig())
//	id, err := w.Add(ctx, search.NewDocument(search.Text("Name", "Stefano")))
//	err = w.Commit(ctx)
//	res, err := w.Reader().Search(ctx, "Name:Stefano", 10)
//
// Documents become visible to readers at Commit.
package search

import (
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

type (
	Config   = config.IndexConfig
	Document = document.Document
	Field    = document.Field
	ID       = document.ID
	Result   = executor.SearchResult
	Hit      = executor.Hit
	Stats    = indexer.Stats

	// Expr is a parsed query, built by Reader.Parse or by hand from the
	// node types below. Terms and phrases are matched as given, so their
	// text must already be analysed.
	Expr   = parser.Expr
	Term   = parser.Term
	Phrase = parser.Phrase
	And    = parser.And
	Or     = parser.Or
	Not    = parser.Not

	// CacheStore backs the result cache; pkg/redis.Client implements it.
	CacheStore = cache.Store
)

func DefaultConfig() Config { return config.DefaultIndexConfig("") }

func NewDocument(fields ...Field) Document { return document.New(fields...) }

// Text is an indexed field whose value is not kept.
func Text(name, value string) Field { return document.Text(name, value) }

// Stored is an indexed field whose value Reader.Document returns.
func Stored(name, value string) Field { return document.Stored(name, value) }

type settings struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	scorer       ranker.Scorer
	defaultField string
	maxResults   int
	concurrency  int
	cacheStore   CacheStore
	cacheTTL     time.Duration
}

type Option func(*settings)

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithScorer selects the ranking formula by name: "bm25" (default) or
// "tfidf". Unknown names make Open fail.
func WithScorer(name string) Option {
	return func(s *settings) {
		sc, err := ranker.FromName(name)
		if err != nil {
			s.scorer = invalidScorer{err}
			return
		}
		s.scorer = sc
	}
}

// WithDefaultField sets the field unqualified query words search. It is
// "Name" unless set.
func WithDefaultField(field string) Option {
	return func(s *settings) { s.defaultField = field }
}

// WithMaxResults caps the topK of every search.
func WithMaxResults(n int) Option {
	return func(s *settings) { s.maxResults = n }
}

// WithConcurrency bounds how many segments one query reads in parallel.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

// WithCache memoises results in store for ttl. Entries are keyed by index
// generation, so a commit never serves stale results.
func WithCache(store CacheStore, ttl time.Duration) Option {
	return func(s *settings) {
		s.cacheStore = store
		s.cacheTTL = ttl
	}
}

func newSettings(opts []Option) (settings, error) {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if bad, ok := s.scorer.(invalidScorer); ok {
		return s, bad.err
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// invalidScorer carries a WithScorer error to Open.
type invalidScorer struct{ err error }

func (invalidScorer) Name() string                   { return "invalid" }
func (invalidScorer) Score(ranker.TermStats) float64 { return 0 }
