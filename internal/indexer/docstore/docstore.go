// Package docstore allocates document IDs and tracks deletions.
//
// IDs are handed out from blocks whose upper bound is made durable through a
// Reserver before the first ID of the block is returned. After a crash the
// allocator restarts at the last durable bound, so an ID is never issued
// twice even if the documents it was given to were never flushed.
package docstore

import (
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// FirstID is the first ID allocated in a fresh index.
const FirstID = 1

// Reserver persists a new allocation ceiling: every ID below ceiling may be
// handed out once it returns nil.
type Reserver func(ceiling uint64) error

type Store struct {
	mu         sync.Mutex
	next       uint64
	ceiling    uint64
	blockSize  uint64
	reserve    Reserver
	tombstones *roaring64.Bitmap
}

// New creates a Store that continues from next (the durable ceiling recorded
// in the manifest) with the given tombstones. The bitmap is copied.
func New(next uint64, tombstones *roaring64.Bitmap, blockSize uint64, reserve Reserver) *Store {
	if next < FirstID {
		next = FirstID
	}
	if blockSize == 0 {
		blockSize = 1
	}
	t := roaring64.New()
	if tombstones != nil {
		t = tombstones.Clone()
	}
	return &Store{
		next:       next,
		ceiling:    next,
		blockSize:  blockSize,
		reserve:    reserve,
		tombstones: t,
	}
}

// Allocate returns the next document ID.
func (s *Store) Allocate() (document.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= s.ceiling {
		ceiling := s.next + s.blockSize
		if s.reserve != nil {
			if err := s.reserve(ceiling); err != nil {
				return 0, fmt.Errorf("reserving document ids up to %d: %w", ceiling, err)
			}
		}
		s.ceiling = ceiling
	}
	id := s.next
	s.next++
	return document.ID(id), nil
}

// Ceiling returns the durable allocation bound, which is what the manifest
// records as the next document ID.
func (s *Store) Ceiling() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ceiling
}

// Next returns the ID the next Allocate call would return, ignoring block
// reservation.
func (s *Store) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// MarkDeleted tombstones id. It reports whether the ID was live before the
// call. IDs that were never allocated are rejected.
func (s *Store) MarkDeleted(id document.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(id) < FirstID || uint64(id) >= s.next {
		return false, apperrors.Newf(apperrors.ErrNotFound, "document %d was never allocated", id)
	}
	return s.tombstones.CheckedAdd(uint64(id)), nil
}

// IsLive reports whether id was allocated and not deleted.
func (s *Store) IsLive(id document.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(id) >= FirstID && uint64(id) < s.next && !s.tombstones.Contains(uint64(id))
}

// IsDeleted reports whether id carries a tombstone.
func (s *Store) IsDeleted(id document.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tombstones.Contains(uint64(id))
}

// Tombstones returns a copy of the tombstone set.
func (s *Store) Tombstones() *roaring64.Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tombstones.Clone()
}

// Purge forgets tombstones for IDs that no longer exist in any segment.
func (s *Store) Purge(ids *roaring64.Bitmap) {
	if ids == nil || ids.IsEmpty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones.AndNot(ids)
}
