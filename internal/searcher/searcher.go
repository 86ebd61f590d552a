// Package searcher is the read side of an index: it parses queries, runs
// them against a snapshot of the live segments and optionally caches the
// results.
package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

const DefaultField = "Name"

type Searcher struct {
	segments     *segment.Manager
	parser       *parser.Parser
	executor     *executor.Executor
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultField string
	maxResults   int

	scorer      ranker.Scorer
	concurrency int
}

type Option func(*Searcher)

func WithScorer(s ranker.Scorer) Option {
	return func(sr *Searcher) { sr.scorer = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(sr *Searcher) { sr.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(sr *Searcher) {
		if l != nil {
			sr.logger = l
		}
	}
}

// WithDefaultField sets the field unqualified query clauses search.
func WithDefaultField(field string) Option {
	return func(sr *Searcher) {
		if field != "" {
			sr.defaultField = field
		}
	}
}

// WithMaxResults caps topK. Zero means no cap.
func WithMaxResults(n int) Option {
	return func(sr *Searcher) { sr.maxResults = n }
}

func WithCache(c *cache.QueryCache) Option {
	return func(sr *Searcher) { sr.cache = c }
}

// WithConcurrency bounds the segment reads one query leaf runs in parallel.
func WithConcurrency(n int) Option {
	return func(sr *Searcher) { sr.concurrency = n }
}

// New returns a Searcher over mgr. Queries are analysed with a, which must
// be the analyzer the index was built with.
func New(mgr *segment.Manager, a *analyzer.Analyzer, opts ...Option) *Searcher {
	s := &Searcher{
		segments:     mgr,
		parser:       parser.New(a),
		logger:       slog.Default().With("component", "searcher"),
		defaultField: DefaultField,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = executor.New(s.scorer, executor.WithConcurrency(s.concurrency))
	return s
}

// Search parses query against the default field and returns at most topK
// hits.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (*executor.SearchResult, error) {
	return s.SearchField(ctx, query, s.defaultField, topK)
}

// SearchField is Search with an explicit default field.
func (s *Searcher) SearchField(ctx context.Context, query, defaultField string, topK int) (*executor.SearchResult, error) {
	start := time.Now()
	expr, err := s.parser.Parse(query, defaultField)
	if err != nil {
		s.metrics.Query(apperrors.Kind(err), "none", 0, time.Since(start))
		return nil, err
	}
	return s.run(ctx, start, query, defaultField, expr, topK)
}

// Parse parses query against the default field without running it.
func (s *Searcher) Parse(query string) (parser.Expr, error) {
	return s.parser.Parse(query, s.defaultField)
}

// SearchExpr runs an already parsed expression.
func (s *Searcher) SearchExpr(ctx context.Context, expr parser.Expr, topK int) (*executor.SearchResult, error) {
	return s.run(ctx, time.Now(), parser.Describe(expr), s.defaultField, expr, topK)
}

func (s *Searcher) run(ctx context.Context, start time.Time, raw, field string, expr parser.Expr, topK int) (*executor.SearchResult, error) {
	log := s.logger
	if topK < 0 {
		return nil, apperrors.Newf(apperrors.ErrValidation, "topK must not be negative, got %d", topK)
	}
	if s.maxResults > 0 && topK > s.maxResults {
		topK = s.maxResults
	}
	if err := s.segments.Refresh(ctx); err != nil {
		return nil, err
	}
	snap, err := s.segments.Acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	var (
		result      *executor.SearchResult
		cacheStatus = "disabled"
	)
	if s.cache != nil && expr != nil {
		key := cache.Key{
			IndexID:      s.segments.IndexID(),
			Generation:   snap.Generation,
			Query:        expr.String(),
			DefaultField: field,
			TopK:         topK,
		}
		var hit bool
		result, hit, err = s.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
			return s.executor.Search(ctx, snap, expr, topK)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = s.executor.Search(ctx, snap, expr, topK)
	}
	took := time.Since(start)
	if err != nil {
		s.metrics.Query(apperrors.Kind(err), cacheStatus, 0, took)
		log.Error("search failed", "query", raw, "error", err)
		return nil, err
	}
	out := *result
	out.Query = raw
	resultType := "ok"
	if out.TotalHits == 0 {
		resultType = "empty"
	}
	s.metrics.Query(resultType, cacheStatus, len(out.Results), took)
	log.Debug("search completed",
		"query", raw,
		"generation", snap.Generation,
		"total_hits", out.TotalHits,
		"results", len(out.Results),
		"cache", cacheStatus,
		"duration_ms", took.Milliseconds(),
	)
	return &out, nil
}

// Document returns the stored fields of a live document. A document that
// does not exist or was deleted yields an error wrapping ErrNotFound.
func (s *Searcher) Document(ctx context.Context, id document.ID) (map[string]string, error) {
	if err := s.segments.Refresh(ctx); err != nil {
		return nil, err
	}
	snap, err := s.segments.Acquire()
	if err != nil {
		return nil, err
	}
	defer snap.Release()
	entry, ok := snap.Document(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "document %d", id)
	}
	fields := make(map[string]string, len(entry.Stored))
	for k, v := range entry.Stored {
		fields[k] = v
	}
	return fields, nil
}

// Generation returns the manifest generation queries currently run against.
func (s *Searcher) Generation() (uint64, error) {
	snap, err := s.segments.Acquire()
	if err != nil {
		return 0, err
	}
	defer snap.Release()
	return snap.Generation, nil
}

func (s *Searcher) DefaultField() string {
	return s.defaultField
}
