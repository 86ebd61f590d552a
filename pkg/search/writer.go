package search

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
)

// Writer is the single writer of an index directory. Its methods are safe
// for concurrent use.
type Writer struct {
	engine *indexer.Engine
	reader *Reader
}

// OpenWriter opens or creates the index at path. cfg.DataDir is ignored. A
// directory already held by another writer yields an error wrapping
// errors.ErrLockHeld.
func OpenWriter(path string, cfg Config, opts ...Option) (*Writer, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = path
	e, err := indexer.Open(path, cfg,
		indexer.WithLogger(s.logger.With("component", "indexer")),
		indexer.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	w := &Writer{engine: e}
	w.reader = &Reader{searcher: e.Searcher(s.searcherOptions()...)}
	return w, nil
}

// Add buffers doc and returns its ID. It becomes searchable at Commit.
func (w *Writer) Add(ctx context.Context, doc Document) (ID, error) {
	return w.engine.Add(ctx, doc)
}

// AddBatch adds every valid document. Rejected ones keep ID 0 in the
// returned slice and are listed in a *errors.BatchError.
func (w *Writer) AddBatch(ctx context.Context, docs []Document) ([]ID, error) {
	return w.engine.AddBatch(ctx, docs)
}

// Delete removes id from search results from the next Commit on.
func (w *Writer) Delete(ctx context.Context, id ID) error {
	return w.engine.Delete(ctx, id)
}

// Commit makes every prior Add and Delete durable and visible.
func (w *Writer) Commit(ctx context.Context) error {
	return w.engine.Commit(ctx)
}

// Merge rewrites all committed segments into one.
func (w *Writer) Merge(ctx context.Context) error {
	return w.engine.Merge(ctx)
}

// StartCommitLoop commits every Config.CommitInterval until ctx is done.
func (w *Writer) StartCommitLoop(ctx context.Context) {
	w.engine.StartCommitLoop(ctx)
}

// Stats reports segment and buffer counters.
func (w *Writer) Stats() (Stats, error) {
	return w.engine.Stats()
}

// Reader searches this writer's committed state. It shares the writer's
// segments and needs no Close.
func (w *Writer) Reader() *Reader {
	return w.reader
}

// Close commits buffered documents and releases the directory.
func (w *Writer) Close() error {
	return w.engine.Close()
}
