package search

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
)

// Reader runs queries against the latest committed state of an index. It
// picks up new commits on its own and is safe for concurrent use.
type Reader struct {
	searcher *searcher.Searcher
	segments *segment.Manager
}

// OpenReader opens the index at path for searching. It never takes the
// write lock, so it works while a writer is open in another process. The
// index must have been created by a writer.
func OpenReader(path string, opts ...Option) (*Reader, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	mgr, err := segment.OpenReadOnly(path,
		segment.WithLogger(s.logger.With("component", "segment-manager")),
		segment.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	a, err := analyzer.New(mgr.Manifest().Analyzer)
	if err != nil {
		mgr.Close()
		return nil, fmt.Errorf("building analyzer: %w", err)
	}
	return &Reader{
		searcher: searcher.New(mgr, a, s.searcherOptions()...),
		segments: mgr,
	}, nil
}

func (s settings) searcherOptions() []searcher.Option {
	opts := []searcher.Option{
		searcher.WithLogger(s.logger.With("component", "searcher")),
		searcher.WithMetrics(s.metrics),
		searcher.WithDefaultField(s.defaultField),
		searcher.WithMaxResults(s.maxResults),
		searcher.WithConcurrency(s.concurrency),
	}
	if s.scorer != nil {
		opts = append(opts, searcher.WithScorer(s.scorer))
	}
	if s.cacheStore != nil {
		opts = append(opts, searcher.WithCache(cache.New(s.cacheStore, s.cacheTTL, s.metrics)))
	}
	return opts
}

// Search parses query and returns its topK best hits. Unqualified words
// search the default field. A malformed query yields a *errors.ParseError.
func (r *Reader) Search(ctx context.Context, query string, topK int) (*Result, error) {
	return r.searcher.Search(ctx, query, topK)
}

// SearchField is Search with an explicit default field.
func (r *Reader) SearchField(ctx context.Context, query, defaultField string, topK int) (*Result, error) {
	return r.searcher.SearchField(ctx, query, defaultField, topK)
}

// SearchExpr runs a query tree.
func (r *Reader) SearchExpr(ctx context.Context, expr Expr, topK int) (*Result, error) {
	return r.searcher.SearchExpr(ctx, expr, topK)
}

// Parse turns query into a tree without running it.
func (r *Reader) Parse(query string) (Expr, error) {
	return r.searcher.Parse(query)
}

// Document returns the stored fields of a live document.
func (r *Reader) Document(ctx context.Context, id ID) (map[string]string, error) {
	return r.searcher.Document(ctx, id)
}

// Generation returns the commit generation the reader currently sees.
func (r *Reader) Generation() (uint64, error) {
	return r.searcher.Generation()
}

// Close releases the reader's segment files. Readers returned by
// Writer.Reader are closed with their writer and ignore Close.
func (r *Reader) Close() error {
	if r.segments == nil {
		return nil
	}
	return r.segments.Close()
}
