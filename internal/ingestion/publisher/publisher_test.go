package publisher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

type fakeProducer struct {
	events []kafka.Event
}

func (f *fakeProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.events = append(f.events, events...)
	return nil
}

type sliceSource []ingestion.Record

func (s sliceSource) Name() string { return "slice" }
func (s sliceSource) Close() error { return nil }
func (s sliceSource) Run(ctx context.Context, sink source.Sink) error {
	return sink(ctx, s)
}

func TestPublisherRun(t *testing.T) {
	src := sliceSource{
		{Key: "u1", Fields: []document.Field{document.Text("Name", "Stefano"), document.Text("Secret", "x")}},
		{Key: "u2", Fields: []document.Field{document.Text("Secret", "only")}},
		{Fields: []document.Field{document.Text("Name", "Maria")}},
	}
	prod := &fakeProducer{}
	stats, err := New(prod, []string{"Name"}).Run(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Published != 2 || stats.Rejected != 1 {
		t.Fatalf("stats = %+v, want 2 published 1 rejected", stats)
	}
	if prod.events[0].Key != "u1" {
		t.Errorf("first key = %q", prod.events[0].Key)
	}
	if prod.events[1].Key == "" {
		t.Error("keyless record got no content key")
	}
	data, err := json.Marshal(prod.events[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"Name":"Stefano"}` {
		t.Errorf("payload = %s, want only allowed fields", data)
	}
}

func TestContentKeyStable(t *testing.T) {
	a := ingestion.Record{Fields: []document.Field{document.Text("Name", "Stefano")}}
	b := ingestion.Record{Fields: []document.Field{document.Text("Name", "Stefano")}}
	c := ingestion.Record{Fields: []document.Field{document.Text("Nam", "eStefano")}}
	if contentKey(a) != contentKey(b) {
		t.Error("identical records got different keys")
	}
	if contentKey(a) == contentKey(c) {
		t.Error("field boundary not part of the key")
	}
}
