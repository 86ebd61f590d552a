package segment

import (
	"cmp"
	"container/heap"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// SelectForMerge applies the tiered policy: when there are more than fanout
// segments, the fanout smallest are merged. It returns nil when no merge is
// due.
func SelectForMerge(segments []*Handle, fanout int) []*Handle {
	if fanout < 2 || len(segments) <= fanout {
		return nil
	}
	sorted := slices.Clone(segments)
	slices.SortFunc(sorted, func(a, b *Handle) int {
		if c := cmp.Compare(a.Size(), b.Size()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return sorted[:fanout]
}

// Merge writes one segment holding the postings of inputs minus the
// documents in tombstones. Like Flush, the result is not live until it is
// published with the inputs as Removed. A nil handle and nil error mean every
// input document was deleted, so the inputs can simply be dropped.
func (m *Manager) Merge(ctx context.Context, inputs []*Handle, tombstones *roaring64.Bitmap) (*Handle, error) {
	if m.readOnly {
		return nil, apperrors.New(apperrors.ErrValidation, "read-only index")
	}
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.ErrValidation, "nothing to merge")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tombstones == nil {
		tombstones = roaring64.New()
	}
	start := time.Now()
	ids := make([]uint64, len(inputs))
	var docs []index.DocEntry
	for i, h := range inputs {
		ids[i] = h.ID()
		for _, d := range h.reader.DocEntries() {
			if !tombstones.Contains(uint64(d.ID)) {
				docs = append(docs, d)
			}
		}
	}
	if len(docs) == 0 {
		m.metrics.Merge("ok", time.Since(start))
		m.logger.Info("merge dropped fully deleted segments", "inputs", ids)
		return nil, nil
	}

	id := m.allocSegmentID()
	h, err := m.write(id, func(b *Builder) error {
		return mergeTerms(b, inputs, tombstones)
	}, docs)
	took := time.Since(start)
	if err != nil {
		m.metrics.Merge("error", took)
		return nil, fmt.Errorf("merging segments %v: %w", ids, err)
	}
	m.metrics.Merge("ok", took)
	m.logger.Info("segments merged",
		"inputs", ids,
		"segment_id", id,
		"docs", h.info.DocCount,
		"terms", h.info.TermCount,
		"bytes", h.info.Size,
		"duration_ms", took.Milliseconds(),
	)
	return h, nil
}

type cursor struct {
	it  *TermIterator
	key index.TermKey
	src int
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key.Less(h[j].key)
	}
	return h[i].src < h[j].src
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// mergeTerms k-way merges the dictionaries of inputs, so every (field, term)
// is visited once in order, and writes the surviving postings to b.
func mergeTerms(b *Builder, inputs []*Handle, tombstones *roaring64.Bitmap) error {
	h := make(cursorHeap, 0, len(inputs))
	for i, in := range inputs {
		it := in.reader.Iterator()
		if it.Next() {
			h = append(h, &cursor{it: it, key: it.Key(), src: i})
		}
	}
	heap.Init(&h)

	var merged index.PostingList
	for h.Len() > 0 {
		key := h[0].key
		merged = merged[:0]
		for h.Len() > 0 && h[0].key == key {
			c := heap.Pop(&h).(*cursor)
			list, err := c.it.Postings()
			if err != nil {
				return err
			}
			for _, p := range list {
				if !tombstones.Contains(uint64(p.DocID)) {
					merged = append(merged, p)
				}
			}
			if c.it.Next() {
				c.key = c.it.Key()
				heap.Push(&h, c)
			}
		}
		if len(merged) == 0 {
			continue
		}
		// Inputs chosen by size may interleave in ID space.
		slices.SortFunc(merged, func(a, b index.Posting) int {
			return cmp.Compare(a.DocID, b.DocID)
		})
		for i := 1; i < len(merged); i++ {
			if merged[i].DocID == merged[i-1].DocID {
				return fmt.Errorf("document %d of %s:%s found in two segments", merged[i].DocID, key.Field, key.Term)
			}
		}
		if err := b.Add(index.TermEntry{TermKey: key, Postings: merged}); err != nil {
			return err
		}
	}
	return nil
}
