// Package indexer owns the write path of an index directory: it analyses
// documents into an in-memory buffer, flushes the buffer into immutable
// segments and publishes them through the segment manager.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/analyzer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/dirlock"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// positionGap separates the values of a repeated field so a phrase cannot
// match across two of them.
const positionGap = 1

type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Engine is the single writer of an index directory. All methods are safe
// for concurrent use.
type Engine struct {
	cfg      config.IndexConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	analyzer *analyzer.Analyzer
	lock     *dirlock.Lock
	segments *segment.Manager
	docs     *docstore.Store
	stored   map[string]bool

	// Adds hold mu for reading while they fill the buffer; a flush holds it
	// for writing so it sees every allocated document.
	mu       sync.RWMutex
	memIndex *index.MemoryIndex

	// commitMu serialises flush, commit and merge.
	commitMu       sync.Mutex
	pending        []*segment.Handle
	committedTombs *roaring64.Bitmap
	deletesDirty   atomic.Bool

	stateMu  sync.RWMutex
	state    State
	inflight sync.WaitGroup
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Open takes the write lock on dir and opens or creates the index there. A
// second writer on the same directory gets an error wrapping ErrLockHeld.
func Open(dir string, cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer"),
		memIndex: index.NewMemoryIndex(),
		stored:   make(map[string]bool, len(cfg.StoredFields)),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, f := range cfg.StoredFields {
		e.stored[f] = true
	}

	lock, err := dirlock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	mgr, err := segment.Open(dir, cfg.Analyzer,
		segment.WithLogger(e.logger.With("component", "segment-manager")),
		segment.WithMetrics(e.metrics),
	)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("opening segments: %w", err)
	}
	man := mgr.Manifest()
	if !sameAnalyzer(man.Analyzer, cfg.Analyzer) {
		e.logger.Warn("analyzer settings differ from the ones the index was built with; keeping the index's",
			"index_id", man.IndexID,
		)
	}
	a, err := analyzer.New(man.Analyzer)
	if err != nil {
		mgr.Close()
		lock.Release()
		return nil, fmt.Errorf("building analyzer: %w", err)
	}
	tombs, err := man.TombstoneSet()
	if err != nil {
		mgr.Close()
		lock.Release()
		return nil, err
	}

	e.lock = lock
	e.segments = mgr
	e.analyzer = a
	e.committedTombs = tombs
	e.docs = docstore.New(man.NextDocID, tombs, cfg.IDBlockSize, mgr.Reserve)
	e.logger.Info("index writer opened",
		"dir", dir,
		"index_id", man.IndexID,
		"generation", man.Generation,
		"next_doc_id", man.NextDocID,
		"tombstones", tombs.GetCardinality(),
	)
	return e, nil
}

func sameAnalyzer(a, b config.AnalyzerConfig) bool {
	return a.MinTokenLength == b.MinTokenLength &&
		a.Lowercase == b.Lowercase &&
		a.Stemmer == b.Stemmer &&
		slices.Equal(a.StopWords, b.StopWords)
}

// enter registers an in-flight write unless the engine is shutting down.
func (e *Engine) enter() error {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if e.state != StateOpen {
		return apperrors.Newf(apperrors.ErrClosed, "index is %s", e.state)
	}
	e.inflight.Add(1)
	return nil
}

func (e *Engine) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// Add analyses doc into the buffer and returns its ID. The document becomes
// searchable at the next Commit.
func (e *Engine) Add(ctx context.Context, doc document.Document) (document.ID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.inflight.Done()
	return e.add(ctx, doc)
}

func (e *Engine) add(ctx context.Context, doc document.Document) (document.ID, error) {
	if err := validator.ValidateDocument(doc); err != nil {
		e.metrics.DocRejected(apperrors.Kind(err))
		return 0, err
	}
	fields, entry := e.analyze(doc)

	e.mu.RLock()
	id, err := e.docs.Allocate()
	if err != nil {
		e.mu.RUnlock()
		e.metrics.DocRejected(apperrors.Kind(err))
		return 0, err
	}
	entry.ID = id
	e.memIndex.AddDocument(entry, fields)
	size := e.memIndex.CurrentSize()
	e.mu.RUnlock()

	e.metrics.DocIndexed()
	e.logger.Debug("document buffered", "doc_id", id, "fields", len(fields), "buffer_bytes", size)
	if size >= e.cfg.FlushThresholdBytes {
		if err := e.flushIfFull(ctx); err != nil {
			// The buffer is kept on failure; the next commit retries.
			e.logger.Error("flush on threshold failed", "error", err)
		}
	}
	return id, nil
}

// AddBatch adds every document it can. Documents that fail are skipped and
// reported through a *BatchError; their slot in the returned slice is 0.
func (e *Engine) AddBatch(ctx context.Context, docs []document.Document) ([]document.ID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.inflight.Done()

	ids := make([]document.ID, len(docs))
	var failures []apperrors.DocumentError
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		id, err := e.add(ctx, doc)
		if err != nil {
			failures = append(failures, apperrors.DocumentError{Index: i, Err: err})
			continue
		}
		ids[i] = id
	}
	if len(failures) > 0 {
		e.logger.Warn("batch documents skipped", "skipped", len(failures), "total", len(docs))
		return ids, &apperrors.BatchError{Failures: failures}
	}
	return ids, nil
}

// analyze turns doc into per-field term lists. Values of a repeated field
// name are concatenated with a position gap.
func (e *Engine) analyze(doc document.Document) ([]index.AnalyzedField, index.DocEntry) {
	entry := index.DocEntry{FieldLengths: make(map[string]int)}
	byName := make(map[string]int)
	next := make(map[string]int)
	var fields []index.AnalyzedField
	for _, f := range doc.Fields {
		i, seen := byName[f.Name]
		if !seen {
			i = len(fields)
			byName[f.Name] = i
			fields = append(fields, index.AnalyzedField{Name: f.Name})
		}
		af := &fields[i]
		base := next[f.Name]
		last := base - 1
		for tok := range e.analyzer.Analyze(f.Value) {
			pos := base + tok.Position
			af.Terms = append(af.Terms, tok.Text)
			af.Pos = append(af.Pos, pos)
			last = pos
		}
		af.Length = len(af.Terms)
		next[f.Name] = last + 1 + positionGap

		if f.Kind == document.KindStoredText || e.stored[f.Name] {
			if entry.Stored == nil {
				entry.Stored = make(map[string]string)
			}
			if prev, ok := entry.Stored[f.Name]; ok {
				entry.Stored[f.Name] = prev + "\n" + f.Value
			} else {
				entry.Stored[f.Name] = f.Value
			}
		}
	}
	for _, af := range fields {
		if af.Length > 0 {
			entry.FieldLengths[af.Name] = af.Length
		}
	}
	return fields, entry
}

// Delete tombstones id. Queries stop returning it after the next Commit.
func (e *Engine) Delete(ctx context.Context, id document.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.inflight.Done()
	wasLive, err := e.docs.MarkDeleted(id)
	if err != nil {
		return err
	}
	if wasLive {
		e.deletesDirty.Store(true)
		e.metrics.DocDeleted()
		e.logger.Debug("document deleted", "doc_id", id)
	}
	return nil
}

func (e *Engine) flushIfFull(ctx context.Context) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	if e.memIndex.CurrentSize() < e.cfg.FlushThresholdBytes {
		return nil
	}
	return e.flushLocked(ctx)
}

// flushLocked writes the buffer to a pending segment. Adds are blocked for
// the duration so a failed write leaves the buffer intact.
func (e *Engine) flushLocked(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memIndex.DocCount() == 0 {
		return nil
	}
	h, err := e.segments.Flush(ctx, e.memIndex.Snapshot())
	if err != nil {
		return err
	}
	e.pending = append(e.pending, h)
	e.memIndex.Reset()
	return nil
}

// Commit flushes the buffer and publishes every pending segment and
// deletion in one manifest update. Queries that start after Commit returns
// see all documents added before it was called. Committing with nothing to
// publish is a no-op.
func (e *Engine) Commit(ctx context.Context) error {
	if e.State() == StateClosed {
		return apperrors.New(apperrors.ErrClosed, "index is closed")
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return e.commitLocked(ctx)
}

func (e *Engine) commitLocked(ctx context.Context) error {
	if err := e.flushLocked(ctx); err != nil {
		e.metrics.Commit("error")
		return fmt.Errorf("commit: %w", err)
	}
	dirty := e.deletesDirty.Swap(false)
	if len(e.pending) == 0 && !dirty {
		return nil
	}
	tombs := e.docs.Tombstones()
	err := e.segments.Publish(segment.Change{
		Added:      e.pending,
		Tombstones: tombs,
		NextDocID:  e.docs.Ceiling(),
	})
	if err != nil {
		if dirty {
			e.deletesDirty.Store(true)
		}
		e.metrics.Commit("error")
		return fmt.Errorf("commit: %w", err)
	}
	e.logger.Info("commit complete", "segments_added", len(e.pending), "tombstones", tombs.GetCardinality())
	e.pending = nil
	e.committedTombs = tombs
	e.metrics.Commit("ok")

	if err := e.mergeByPolicyLocked(ctx); err != nil {
		// The commit itself is durable; a failed merge only leaves more
		// segments behind and is retried after the next commit.
		e.logger.Error("merge after commit failed", "error", err)
	}
	return nil
}

// Merge compacts every live segment into one, dropping deleted documents.
func (e *Engine) Merge(ctx context.Context) error {
	if e.State() == StateClosed {
		return apperrors.New(apperrors.ErrClosed, "index is closed")
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	snap, err := e.segments.Acquire()
	if err != nil {
		return err
	}
	defer snap.Release()
	if len(snap.Segments) == 0 {
		return nil
	}
	if len(snap.Segments) == 1 && !snap.Segments[0].Reader().Docs().Intersects(e.committedTombs) {
		return nil
	}
	return e.mergeLocked(ctx, snap.Segments)
}

func (e *Engine) mergeByPolicyLocked(ctx context.Context) error {
	for {
		snap, err := e.segments.Acquire()
		if err != nil {
			return err
		}
		inputs := segment.SelectForMerge(snap.Segments, e.cfg.MergeFanout)
		if inputs == nil {
			snap.Release()
			return nil
		}
		err = e.mergeLocked(ctx, inputs)
		snap.Release()
		if err != nil {
			return err
		}
	}
}

// mergeLocked replaces inputs by one merged segment. Only deletions that
// have been committed are applied, and their tombstones are forgotten once
// no segment holds the document any more.
func (e *Engine) mergeLocked(ctx context.Context, inputs []*segment.Handle) error {
	tombs := e.committedTombs
	merged, err := e.segments.Merge(ctx, inputs, tombs)
	if err != nil {
		return err
	}
	purge := roaring64.New()
	for _, h := range inputs {
		purge.Or(h.Reader().Docs())
	}
	purge.And(tombs)
	remaining := tombs.Clone()
	remaining.AndNot(purge)

	change := segment.Change{
		Removed:    inputs,
		Tombstones: remaining,
		NextDocID:  e.docs.Ceiling(),
	}
	if merged != nil {
		change.Added = []*segment.Handle{merged}
	}
	if err := e.segments.Publish(change); err != nil {
		e.segments.Discard(merged)
		return err
	}
	e.docs.Purge(purge)
	e.committedTombs = remaining
	return nil
}

// StartCommitLoop commits every cfg.CommitInterval until ctx is done. It is
// meant for long-running ingestion where no caller commits explicitly.
func (e *Engine) StartCommitLoop(ctx context.Context) {
	if e.cfg.CommitInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.CommitInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("commit loop stopping")
				return
			case <-ticker.C:
				if err := e.Commit(ctx); err != nil {
					if errors.Is(err, apperrors.ErrClosed) {
						return
					}
					e.logger.Error("periodic commit failed", "error", err)
				}
			}
		}
	}()
}

// Searcher returns a query handle over this writer's committed segments.
func (e *Engine) Searcher(opts ...searcher.Option) *searcher.Searcher {
	return searcher.New(e.segments, e.analyzer, opts...)
}

func (e *Engine) Analyzer() *analyzer.Analyzer {
	return e.analyzer
}

// Stats describes the engine's current state.
type Stats struct {
	Generation      uint64
	Segments        int
	LiveDocs        uint64
	BufferedDocs    int
	BufferedBytes   int64
	PendingSegments int
	NextDocID       uint64
}

func (e *Engine) Stats() (Stats, error) {
	snap, err := e.segments.Acquire()
	if err != nil {
		return Stats{}, err
	}
	defer snap.Release()
	e.commitMu.Lock()
	pending := len(e.pending)
	e.commitMu.Unlock()
	return Stats{
		Generation:      snap.Generation,
		Segments:        len(snap.Segments),
		LiveDocs:        snap.DocCount(),
		BufferedDocs:    e.memIndex.DocCount(),
		BufferedBytes:   e.memIndex.CurrentSize(),
		PendingSegments: pending,
		NextDocID:       e.docs.Next(),
	}, nil
}

// Close stops accepting writes, waits for in-flight adds, commits and
// releases the directory. Calling it again is a no-op.
func (e *Engine) Close() error {
	e.stateMu.Lock()
	if e.state != StateOpen {
		e.stateMu.Unlock()
		return nil
	}
	e.state = StateClosing
	e.stateMu.Unlock()

	e.logger.Info("closing index writer, draining in-flight writes")
	e.inflight.Wait()

	e.commitMu.Lock()
	commitErr := e.commitLocked(context.Background())
	for _, h := range e.pending {
		e.segments.Discard(h)
	}
	e.pending = nil
	e.commitMu.Unlock()

	closeErr := e.segments.Close()
	lockErr := e.lock.Release()

	e.stateMu.Lock()
	e.state = StateClosed
	e.stateMu.Unlock()
	if err := errors.Join(commitErr, closeErr, lockErr); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	e.logger.Info("index writer closed")
	return nil
}
