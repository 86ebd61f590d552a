package search

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func profile(name, surname string) Document {
	return NewDocument(Stored("Name", name), Stored("Surname", surname), Text("Address", "Via Roma"))
}

func TestWriterAndReader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := OpenWriter(dir, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ids, err := w.AddBatch(ctx, []Document{
		profile("Stefano", "Rossi"),
		profile("Maria", "Bianchi"),
		profile("Stefano Luca", "Verdi"),
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := OpenReader(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	res, err := r.Search(ctx, "Stefano", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 0 {
		t.Fatalf("uncommitted documents visible: %d hits", res.TotalHits)
	}

	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	res, err = r.Search(ctx, "Stefano", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 2 {
		t.Fatalf("TotalHits = %d, want 2", res.TotalHits)
	}
	if res.Results[0].DocID != ids[0] {
		t.Errorf("top hit = %d, want %d (shorter Name field)", res.Results[0].DocID, ids[0])
	}
	if got := res.Results[0].Fields["Surname"]; got != "Rossi" {
		t.Errorf("stored Surname = %q, want Rossi", got)
	}

	if err := w.Delete(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	res, err = r.Search(ctx, "Stefano", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 1 || res.Results[0].DocID != ids[2] {
		t.Errorf("after delete: %+v", res.Results)
	}
	if _, err := r.Document(ctx, ids[0]); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Document(deleted) error = %v, want ErrNotFound", err)
	}
	fields, err := r.Document(ctx, ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if fields["Name"] != "Maria" {
		t.Errorf("Document = %v", fields)
	}
	if _, ok := fields["Address"]; ok {
		t.Error("unstored field returned")
	}
}

func TestSearchExpr(t *testing.T) {
	ctx := context.Background()
	w, err := OpenWriter(t.TempDir(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.AddBatch(ctx, []Document{profile("Stefano", "Rossi"), profile("Maria", "Rossi")}); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	r := w.Reader()
	expr := &And{Clauses: []Expr{
		&Term{Field: "Surname", Text: "rossi"},
		&Not{Clause: &Term{Field: "Name", Text: "stefano"}},
	}}
	res, err := r.SearchExpr(ctx, expr, 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 1 || res.Results[0].Fields["Name"] != "Maria" {
		t.Errorf("SearchExpr = %+v", res.Results)
	}

	parsed, err := r.Parse("Surname:Rossi AND NOT Stefano")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.String() != expr.String() {
		t.Errorf("Parse = %s, want %s", parsed, expr)
	}
}

func TestParseErrorLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	w, err := OpenWriter(t.TempDir(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.Add(ctx, profile("Stefano", "Rossi")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := w.Stats()
	_, err = w.Reader().Search(ctx, `"unterminated AND (`, 10)
	var pe *apperrors.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *ParseError", err)
	}
	if pe.Offset != 0 {
		t.Errorf("Offset = %d, want 0", pe.Offset)
	}
	after, _ := w.Stats()
	if before != after {
		t.Errorf("stats changed: %+v -> %+v", before, after)
	}
}

func TestSecondWriterRejected(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := OpenWriter(dir, DefaultConfig()); !errors.Is(err, apperrors.ErrLockHeld) {
		t.Fatalf("second OpenWriter error = %v, want ErrLockHeld", err)
	}
}

func TestOptions(t *testing.T) {
	if _, err := OpenWriter(t.TempDir(), DefaultConfig(), WithScorer("pagerank")); err == nil {
		t.Fatal("unknown scorer accepted")
	}
	ctx := context.Background()
	dir := t.TempDir()
	w, err := OpenWriter(dir, DefaultConfig(), WithScorer("tfidf"), WithDefaultField("Surname"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.Add(ctx, profile("Stefano", "Rossi")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := w.Reader().Search(ctx, "rossi", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 1 {
		t.Errorf("default field Surname: %d hits, want 1", res.TotalHits)
	}
}

type memStore struct {
	data map[string][]byte
	sets int
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memStore) DeletePrefix(context.Context, string) (int64, error) { return 0, nil }

func TestReaderCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w, err := OpenWriter(dir, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if _, err := w.Add(ctx, profile("Stefano", "Rossi")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	store := &memStore{data: make(map[string][]byte)}
	r, err := OpenReader(dir, WithCache(store, time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for range 3 {
		if _, err := r.Search(ctx, "Stefano", 10); err != nil {
			t.Fatal(err)
		}
	}
	if store.sets != 1 {
		t.Errorf("cache sets = %d, want 1", store.sets)
	}

	if _, err := w.Add(ctx, profile("Stefano", "Verdi")); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	res, err := r.Search(ctx, "Stefano", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalHits != 2 {
		t.Errorf("stale cached result after commit: %d hits", res.TotalHits)
	}
}
