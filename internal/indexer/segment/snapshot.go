package segment

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Handle is a reference-counted open segment. The file is closed when the
// last reference goes away, and removed as well if the segment was retired
// by a writer.
type Handle struct {
	info   SegmentInfo
	reader *Reader
	owner  bool
	refs   atomic.Int64
	retire atomic.Bool
	logger *slog.Logger
}

func newHandle(info SegmentInfo, r *Reader, owner bool, logger *slog.Logger) *Handle {
	h := &Handle{info: info, reader: r, owner: owner, logger: logger}
	h.refs.Store(1)
	return h
}

func (h *Handle) ID() uint64 {
	return h.info.ID
}

func (h *Handle) Info() SegmentInfo {
	return h.info
}

func (h *Handle) Reader() *Reader {
	return h.reader
}

// Size is the on-disk size used by the merge policy.
func (h *Handle) Size() int64 {
	return h.reader.Size()
}

func (h *Handle) acquire() {
	h.refs.Add(1)
}

func (h *Handle) release() {
	n := h.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		h.logger.Error("segment handle released too often", "segment_id", h.info.ID)
		return
	}
	path := h.reader.Path()
	if err := h.reader.Close(); err != nil {
		h.logger.Warn("closing segment", "segment_id", h.info.ID, "error", err)
	}
	if h.retire.Load() && h.owner {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("removing retired segment", "segment_id", h.info.ID, "error", err)
			return
		}
		h.logger.Debug("retired segment removed", "segment_id", h.info.ID)
	}
}

// Snapshot is a consistent, immutable view of the index: the live segments
// of one manifest generation and its tombstones. Every Snapshot obtained from
// Manager.Acquire must be released exactly once.
type Snapshot struct {
	Generation uint64
	Segments   []*Handle
	Tombstones *roaring64.Bitmap
	// Live is the set of documents a query may return.
	Live *roaring64.Bitmap
	// Warnings lists segments excluded from this view, such as those that
	// failed checksum verification.
	Warnings []string

	refs atomic.Int64
}

func newSnapshot(gen uint64, handles []*Handle, tombstones *roaring64.Bitmap, warnings []string) *Snapshot {
	live := roaring64.New()
	for _, h := range handles {
		h.acquire()
		live.Or(h.reader.Docs())
	}
	if tombstones == nil {
		tombstones = roaring64.New()
	}
	live.AndNot(tombstones)
	s := &Snapshot{
		Generation: gen,
		Segments:   handles,
		Tombstones: tombstones,
		Live:       live,
		Warnings:   warnings,
	}
	s.refs.Store(1)
	return s
}

// tryAcquire takes a reference unless the snapshot has already been freed.
func (s *Snapshot) tryAcquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops the caller's reference.
func (s *Snapshot) Release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	for _, h := range s.Segments {
		h.release()
	}
}

// DocCount returns the number of live documents.
func (s *Snapshot) DocCount() uint64 {
	return s.Live.GetCardinality()
}

// FieldStats sums a field's statistics across all segments.
func (s *Snapshot) FieldStats(field string) FieldStats {
	var total FieldStats
	for _, h := range s.Segments {
		st := h.reader.FieldStats(field)
		total.Docs += st.Docs
		total.TotalLength += st.TotalLength
	}
	return total
}

// DocFreq sums the document frequency of (field, term) across segments.
func (s *Snapshot) DocFreq(field, term string) int {
	n := 0
	for _, h := range s.Segments {
		n += h.reader.DocFreq(field, term)
	}
	return n
}

// Document returns the stored entry of a live document.
func (s *Snapshot) Document(id document.ID) (index.DocEntry, bool) {
	if !s.Live.Contains(uint64(id)) {
		return index.DocEntry{}, false
	}
	for _, h := range s.Segments {
		if !h.reader.Docs().Contains(uint64(id)) {
			continue
		}
		return h.reader.Document(id)
	}
	return index.DocEntry{}, false
}
