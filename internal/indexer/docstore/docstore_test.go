package docstore

import (
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

func TestAllocateIsMonotonicAndReservesBlocks(t *testing.T) {
	var reserved []uint64
	s := New(0, nil, 4, func(c uint64) error {
		reserved = append(reserved, c)
		return nil
	})
	for want := document.ID(1); want <= 9; want++ {
		got, err := s.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}
	wantReserved := []uint64{5, 9, 13}
	if len(reserved) != len(wantReserved) {
		t.Fatalf("reservations = %v, want %v", reserved, wantReserved)
	}
	for i := range wantReserved {
		if reserved[i] != wantReserved[i] {
			t.Errorf("reservation %d = %d, want %d", i, reserved[i], wantReserved[i])
		}
	}
	if s.Ceiling() != 13 {
		t.Errorf("Ceiling() = %d, want 13", s.Ceiling())
	}
}

func TestAllocateAfterRestartSkipsReservedIDs(t *testing.T) {
	var ceiling uint64
	s := New(0, nil, 100, func(c uint64) error { ceiling = c; return nil })
	if _, err := s.Allocate(); err != nil {
		t.Fatal(err)
	}
	// Simulated crash: only the durable ceiling survives.
	restarted := New(ceiling, nil, 100, func(uint64) error { return nil })
	id, err := restarted.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if uint64(id) != ceiling {
		t.Errorf("first id after restart = %d, want %d", id, ceiling)
	}
}

func TestAllocateReservationFailure(t *testing.T) {
	boom := errors.New("disk full")
	s := New(0, nil, 10, func(uint64) error { return boom })
	if _, err := s.Allocate(); !errors.Is(err, boom) {
		t.Fatalf("expected reservation error, got %v", err)
	}
	if s.Next() != FirstID {
		t.Errorf("failed allocation must not consume an id, next = %d", s.Next())
	}
}

func TestAllocateConcurrent(t *testing.T) {
	s := New(0, nil, 7, nil)
	const workers, each = 8, 250
	ids := make(chan document.ID, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id, err := s.Allocate()
				if err != nil {
					t.Error(err)
					return
				}
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)
	seen := make(map[document.ID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*each {
		t.Errorf("allocated %d ids, want %d", len(seen), workers*each)
	}
}

func TestTombstones(t *testing.T) {
	s := New(0, nil, 16, nil)
	for i := 0; i < 3; i++ {
		if _, err := s.Allocate(); err != nil {
			t.Fatal(err)
		}
	}
	wasLive, err := s.MarkDeleted(2)
	if err != nil || !wasLive {
		t.Fatalf("MarkDeleted(2) = %v, %v", wasLive, err)
	}
	if again, _ := s.MarkDeleted(2); again {
		t.Error("second delete reported the document as live")
	}
	if s.IsLive(2) || !s.IsLive(1) || !s.IsLive(3) {
		t.Error("liveness does not reflect tombstones")
	}
	if s.IsLive(4) {
		t.Error("unallocated id reported live")
	}
	if _, err := s.MarkDeleted(99); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleting unallocated id: got %v", err)
	}

	snap := s.Tombstones()
	s.Purge(roaring64.BitmapOf(2))
	if s.IsDeleted(2) {
		t.Error("purged tombstone still present")
	}
	if !snap.Contains(2) {
		t.Error("Tombstones must return an independent copy")
	}
}
