package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
)

const profiles = `{
  "u1": {"Name": "Stefano", "Surname": "Rossi", "Address": "Via Roma 1"},
  "u2": {"Name": "Maria", "Surname": "Bianchi", "Address": "Corso Italia 7"},
  "u3": {"Name": "Stefano Luca", "Surname": "Verdi", "Address": null}
}`

func collect(t *testing.T, src Source) []ingestion.Record {
	t.Helper()
	var got []ingestion.Record
	err := src.Run(context.Background(), func(_ context.Context, batch []ingestion.Record) error {
		got = append(got, batch...)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return got
}

func TestJSONFileObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte(profiles), 0o644); err != nil {
		t.Fatal(err)
	}
	got := collect(t, NewJSONFile(path))
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, key := range []string{"u1", "u2", "u3"} {
		if got[i].Key != key {
			t.Errorf("record %d key = %q, want %q", i, got[i].Key, key)
		}
	}
	if n := len(got[2].Fields); n != 2 {
		t.Errorf("u3 has %d fields, want 2 (null skipped)", n)
	}
	if f := got[0].Fields[0]; f.Name != "Name" || f.Value != "Stefano" {
		t.Errorf("first field = %+v", f)
	}
}

func TestJSONFileBatches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 7; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"Name":"n"}`)
	}
	sb.WriteString("]")
	path := filepath.Join(t.TempDir(), "array.json")
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewJSONFile(path)
	src.batchSize = 3
	var sizes []int
	var keys []string
	err := src.Run(context.Background(), func(_ context.Context, batch []ingestion.Record) error {
		sizes = append(sizes, len(batch))
		for _, r := range batch {
			keys = append(keys, r.Key)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [3 3 1]", sizes)
	}
	if keys[0] != "0" || keys[6] != "6" {
		t.Errorf("array keys = %v", keys)
	}
}

func TestReadRecordsErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"scalar top level", `"x"`},
		{"record not object", `{"u1": "Stefano"}`},
		{"nested value", `[{"Name": {"first": "Stefano"}}]`},
		{"truncated", `{"u1": {"Name": "Stefano"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadRecords(context.Background(), strings.NewReader(tt.in), func(ingestion.Record) error { return nil })
			if err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestReadRecordsEmptyInput(t *testing.T) {
	calls := 0
	err := ReadRecords(context.Background(), strings.NewReader(""), func(ingestion.Record) error {
		calls++
		return nil
	})
	if err != nil || calls != 0 {
		t.Fatalf("empty input: err = %v, calls = %d", err, calls)
	}
}

func TestJSONFileMissing(t *testing.T) {
	err := NewJSONFile(filepath.Join(t.TempDir(), "nope.json")).Run(context.Background(), func(context.Context, []ingestion.Record) error { return nil })
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestJSONFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadRecords(ctx, strings.NewReader(profiles), func(ingestion.Record) error { return nil })
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
