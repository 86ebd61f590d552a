package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Manager owns the set of live segments of one index directory. A writer
// manager flushes, merges and publishes; a read-only manager follows the
// manifest the writer publishes.
type Manager struct {
	dir      string
	readOnly bool
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu            sync.Mutex
	manifest      *Manifest
	handles       map[uint64]*Handle
	warnings      map[uint64]string
	nextSegmentID uint64
	stamp         manifestStamp

	current atomic.Pointer[Snapshot]
	closed  atomic.Bool
}

type manifestStamp struct {
	modTime time.Time
	size    int64
}

func (s manifestStamp) equal(o manifestStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func newManager(dir string, readOnly bool, opts []Option) *Manager {
	m := &Manager{
		dir:      dir,
		readOnly: readOnly,
		logger:   slog.Default().With("component", "segment-manager"),
		handles:  make(map[uint64]*Handle),
		warnings: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("dir", dir)
	return m
}

// Open opens dir for writing, creating an empty index when it has no
// manifest yet. The caller must hold the directory's write lock. Files left
// behind by an interrupted flush or merge are removed.
func Open(dir string, analyzer config.AnalyzerConfig, opts ...Option) (*Manager, error) {
	m := newManager(dir, false, opts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IO("creating index directory", err)
	}
	man, err := ReadManifest(dir)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		man = NewManifest(analyzer)
		if err := WriteManifest(dir, man); err != nil {
			return nil, fmt.Errorf("creating manifest: %w", err)
		}
		m.logger.Info("created index", "index_id", man.IndexID)
	case err != nil:
		return nil, err
	}
	m.manifest = man
	m.nextSegmentID = max(man.NextSegmentID, 1)
	m.removeOrphans()

	m.mu.Lock()
	defer m.mu.Unlock()
	handles, warnings, err := m.openHandlesLocked(man)
	if err != nil {
		return nil, err
	}
	m.handles, m.warnings = handles, warnings
	m.swapSnapshotLocked()
	m.logger.Info("index opened",
		"index_id", man.IndexID,
		"generation", man.Generation,
		"segments", len(handles),
		"excluded_segments", len(warnings),
	)
	return m, nil
}

// OpenReadOnly opens dir for searching. It never writes to the directory.
func OpenReadOnly(dir string, opts ...Option) (*Manager, error) {
	m := newManager(dir, true, opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reloadLocked(); err != nil {
		return nil, err
	}
	return m, nil
}

// removeOrphans deletes segment and temp files the manifest does not name.
func (m *Manager) removeOrphans() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("listing index directory", "error", err)
		return
	}
	named := make(map[string]bool, len(m.manifest.Segments))
	for _, s := range m.manifest.Segments {
		named[s.File] = true
	}
	for _, e := range entries {
		name := e.Name()
		orphan := strings.HasSuffix(name, ".tmp") ||
			(strings.HasPrefix(name, "seg_") && strings.HasSuffix(name, ".seg") && !named[name])
		if !orphan {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			m.logger.Warn("removing orphan file", "file", name, "error", err)
			continue
		}
		m.logger.Info("removed orphan file", "file", name)
	}
}

// openHandlesLocked opens every segment man names, reusing handles that are
// already open. Segments that cannot be opened are reported as warnings and
// left out, except that a reader treats a missing file as a reason to
// re-read the manifest.
func (m *Manager) openHandlesLocked(man *Manifest) (map[uint64]*Handle, map[uint64]string, error) {
	handles := make(map[uint64]*Handle, len(man.Segments))
	warnings := make(map[uint64]string)
	for _, info := range man.Segments {
		if h, ok := m.handles[info.ID]; ok {
			h.acquire()
			handles[info.ID] = h
			continue
		}
		r, err := OpenReader(filepath.Join(m.dir, info.File))
		if err != nil {
			if m.readOnly && errors.Is(err, fs.ErrNotExist) {
				for _, h := range handles {
					h.release()
				}
				return nil, nil, fmt.Errorf("segment %s vanished: %w", info.File, err)
			}
			if errors.Is(err, apperrors.ErrCorruptSegment) {
				m.metrics.CorruptSegment()
			}
			m.logger.Error("excluding segment", "segment_id", info.ID, "file", info.File, "error", err)
			warnings[info.ID] = fmt.Sprintf("segment %s excluded: %v", info.File, err)
			continue
		}
		handles[info.ID] = newHandle(info, r, !m.readOnly, m.logger)
	}
	return handles, warnings, nil
}

// swapSnapshotLocked installs a snapshot of the current handle set and drops
// the manager's reference on the previous one.
func (m *Manager) swapSnapshotLocked() {
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	slices.SortFunc(handles, func(a, b *Handle) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	warnings := make([]string, 0, len(m.warnings))
	for _, w := range m.warnings {
		warnings = append(warnings, w)
	}
	slices.Sort(warnings)
	tombstones, err := m.manifest.TombstoneSet()
	if err != nil {
		// The manifest passed its checksum, so this only happens with a
		// bitmap written by an incompatible library version.
		m.logger.Error("decoding tombstones", "error", err)
		tombstones = roaring64.New()
		warnings = append(warnings, err.Error())
	}
	next := newSnapshot(m.manifest.Generation, handles, tombstones, warnings)
	if old := m.current.Swap(next); old != nil {
		old.Release()
	}
	m.metrics.SetLiveSegments(len(handles))
}

// Acquire returns the current snapshot with a reference the caller must
// release.
func (m *Manager) Acquire() (*Snapshot, error) {
	for {
		if m.closed.Load() {
			return nil, apperrors.New(apperrors.ErrClosed, "segment manager closed")
		}
		s := m.current.Load()
		if s == nil {
			return nil, apperrors.New(apperrors.ErrClosed, "segment manager closed")
		}
		if s.tryAcquire() {
			return s, nil
		}
	}
}

func (m *Manager) statManifest() (manifestStamp, error) {
	st, err := os.Stat(filepath.Join(m.dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifestStamp{}, apperrors.Newf(apperrors.ErrNotFound, "no index manifest in %s", m.dir)
		}
		return manifestStamp{}, apperrors.IO("stat manifest", err)
	}
	return manifestStamp{modTime: st.ModTime(), size: st.Size()}, nil
}

// Refresh makes a read-only manager pick up the latest published manifest.
// It is a no-op for writers and when the manifest has not changed.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.readOnly || m.closed.Load() {
		return nil
	}
	st, err := m.statManifest()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.equal(m.stamp) {
		return nil
	}
	return m.reloadLocked()
}

// reloadLocked re-reads the manifest, retrying when a segment it names was
// removed by a merge published in the meantime.
func (m *Manager) reloadLocked() error {
	cfg := resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, fs.ErrNotExist) && !errors.Is(err, apperrors.ErrNotFound)
		},
	}
	return resilience.Retry(context.Background(), "manifest-reload", cfg, m.reloadOnceLocked)
}

func (m *Manager) reloadOnceLocked() error {
	st, err := m.statManifest()
	if err != nil {
		return err
	}
	man, err := ReadManifest(m.dir)
	if err != nil {
		return err
	}
	if m.manifest != nil && man.Generation == m.manifest.Generation && m.current.Load() != nil {
		m.manifest, m.stamp = man, st
		return nil
	}
	handles, warnings, err := m.openHandlesLocked(man)
	if err != nil {
		return err
	}
	old := m.handles
	m.manifest, m.handles, m.warnings, m.stamp = man, handles, warnings, st
	m.swapSnapshotLocked()
	for _, h := range old {
		h.release()
	}
	m.logger.Debug("manifest reloaded", "generation", man.Generation, "segments", len(handles))
	return nil
}

// Manifest returns a copy of the last manifest written or read.
func (m *Manager) Manifest() *Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifest.clone()
}

// IndexID returns the identity recorded in the manifest when the index was
// created.
func (m *Manager) IndexID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.manifest == nil {
		return ""
	}
	return m.manifest.IndexID
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) ReadOnly() bool {
	return m.readOnly
}

// Reserve durably raises the manifest's next-document-ID bound to ceiling.
func (m *Manager) Reserve(ceiling uint64) error {
	if m.readOnly {
		return apperrors.New(apperrors.ErrValidation, "read-only index")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ceiling <= m.manifest.NextDocID {
		return nil
	}
	next := m.manifest.clone()
	next.NextDocID = ceiling
	next.NextSegmentID = m.nextSegmentID
	next.UpdatedAt = time.Now().UTC()
	if err := WriteManifest(m.dir, next); err != nil {
		return fmt.Errorf("reserving document ids: %w", err)
	}
	m.manifest = next
	return nil
}

func (m *Manager) allocSegmentID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSegmentID
	m.nextSegmentID++
	return id
}

// Flush writes snap as a new segment. The segment is durable but not live
// until it is passed to Publish.
func (m *Manager) Flush(ctx context.Context, snap *index.Snapshot) (*Handle, error) {
	if m.readOnly {
		return nil, apperrors.New(apperrors.ErrValidation, "read-only index")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap.Empty() {
		return nil, apperrors.New(apperrors.ErrValidation, "cannot flush an empty buffer")
	}
	start := time.Now()
	id := m.allocSegmentID()
	h, err := m.write(id, func(b *Builder) error {
		for _, e := range snap.Entries {
			if err := b.Add(e); err != nil {
				return err
			}
		}
		return nil
	}, snap.Docs)
	took := time.Since(start)
	if err != nil {
		m.metrics.Flush("error", took)
		return nil, fmt.Errorf("flushing segment %d: %w", id, err)
	}
	m.metrics.Flush("ok", took)
	m.logger.Info("segment flushed",
		"segment_id", id,
		"docs", h.info.DocCount,
		"terms", h.info.TermCount,
		"bytes", h.info.Size,
		"duration_ms", took.Milliseconds(),
	)
	return h, nil
}

func (m *Manager) write(id uint64, fill func(*Builder) error, docs []index.DocEntry) (*Handle, error) {
	b, err := NewBuilder(m.dir, id)
	if err != nil {
		return nil, err
	}
	if err := fill(b); err != nil {
		b.Abort()
		return nil, err
	}
	info, err := b.Finish(docs)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(m.dir, info.File)
	r, err := OpenReader(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("verifying new segment: %w", err)
	}
	return newHandle(info, r, true, m.logger), nil
}

// Discard removes a segment that was written but never published.
func (m *Manager) Discard(h *Handle) {
	if h == nil {
		return
	}
	h.retire.Store(true)
	h.release()
}

// Change describes one atomic manifest update.
type Change struct {
	Added      []*Handle
	Removed    []*Handle
	Tombstones *roaring64.Bitmap
	// NextDocID is the allocator's durable ceiling; the manifest keeps the
	// larger of it and its own value.
	NextDocID uint64
}

// Publish writes a new manifest generation with c applied and makes it the
// current snapshot. On error nothing changes and the added handles remain
// owned by the caller.
func (m *Manager) Publish(c Change) error {
	if m.readOnly {
		return apperrors.New(apperrors.ErrValidation, "read-only index")
	}
	if m.closed.Load() {
		return apperrors.New(apperrors.ErrClosed, "segment manager closed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[uint64]bool, len(c.Removed))
	for _, h := range c.Removed {
		removed[h.ID()] = true
	}
	next := m.manifest.clone()
	next.Generation++
	next.Segments = slices.DeleteFunc(next.Segments, func(s SegmentInfo) bool {
		return removed[s.ID]
	})
	for _, h := range c.Added {
		next.Segments = append(next.Segments, h.Info())
	}
	if c.Tombstones != nil {
		if err := next.SetTombstones(c.Tombstones); err != nil {
			return err
		}
	}
	next.NextDocID = max(next.NextDocID, c.NextDocID)
	next.NextSegmentID = m.nextSegmentID
	next.UpdatedAt = time.Now().UTC()
	if err := WriteManifest(m.dir, next); err != nil {
		return fmt.Errorf("publishing generation %d: %w", next.Generation, err)
	}
	m.manifest = next

	for _, h := range c.Added {
		m.handles[h.ID()] = h
	}
	var retired []*Handle
	for id := range removed {
		if h, ok := m.handles[id]; ok {
			h.retire.Store(true)
			delete(m.handles, id)
			retired = append(retired, h)
		}
		delete(m.warnings, id)
	}
	m.swapSnapshotLocked()
	for _, h := range retired {
		h.release()
	}
	m.logger.Info("generation published",
		"generation", next.Generation,
		"segments", len(next.Segments),
		"added", len(c.Added),
		"removed", len(c.Removed),
	)
	return nil
}

// Close drops the manager's references. Snapshots still held by callers stay
// readable until they are released.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.current.Swap(nil); s != nil {
		s.Release()
	}
	for id, h := range m.handles {
		h.release()
		delete(m.handles, id)
	}
	return nil
}
