package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
)

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func result(hits int) *executor.SearchResult {
	return &executor.SearchResult{Query: "Name:stefano", TotalHits: hits, Results: []executor.Hit{{DocID: 1, Score: 1.5}}}
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key{IndexID: "idx", Generation: 3, Query: "Name:stefano", DefaultField: "Name", TopK: 10}
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result(7), nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), key, compute)
	if err != nil || hit || got.TotalHits != 7 {
		t.Fatalf("first call: %+v, %v, %v", got, hit, err)
	}
	got, hit, err = c.GetOrCompute(context.Background(), key, compute)
	if err != nil || !hit || got.TotalHits != 7 || got.Results[0].Score != 1.5 {
		t.Fatalf("second call: %+v, %v, %v", got, hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times", calls)
	}
	if hits, misses := c.Stats(); hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestGenerationChangesKey(t *testing.T) {
	a := Key{IndexID: "idx", Generation: 1, Query: "q", DefaultField: "Name", TopK: 10}
	b := a
	b.Generation = 2
	c := a
	c.TopK = 5
	d := a
	d.DefaultField = "Surname"
	if a.String() == b.String() || a.String() == c.String() || a.String() == d.String() {
		t.Error("distinct searches share a key")
	}
	if !strings.HasPrefix(a.String(), keyPrefix+"idx:") {
		t.Errorf("key %s lacks index prefix", a)
	}
}

func TestComputeErrorNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Key{Query: "x"}, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if len(store.data) != 0 {
		t.Error("failed computation was cached")
	}
}

func TestStoreFailureIsMiss(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	got, hit, err := c.GetOrCompute(context.Background(), Key{Query: "x"}, func() (*executor.SearchResult, error) {
		return result(1), nil
	})
	if err != nil || hit || got.TotalHits != 1 {
		t.Errorf("got %+v, %v, %v", got, hit, err)
	}
}

func TestSingleflight(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	key := Key{IndexID: "idx", Query: "slow"}
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrCompute(context.Background(), key, func() (*executor.SearchResult, error) {
				calls.Add(1)
				<-release
				return result(1), nil
			})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Errorf("compute called %d times", n)
	}
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), Key{IndexID: "a", Query: "x"}, result(1))
	c.Set(context.Background(), Key{IndexID: "b", Query: "x"}, result(1))
	if err := c.Invalidate(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(context.Background(), Key{IndexID: "a", Query: "x"}); ok {
		t.Error("entry survived invalidation")
	}
	if _, ok := c.Get(context.Background(), Key{IndexID: "b", Query: "x"}); !ok {
		t.Error("other index's entry was removed")
	}
}
