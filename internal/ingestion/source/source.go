// Package source reads documents for the indexer from the places they live:
// a JSON profiles file, a Postgres query or a Kafka topic.
package source

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// DefaultBatchSize is how many records a source hands to the sink at once.
const DefaultBatchSize = 500

// Sink receives batches of records. A returned error stops the source.
type Sink func(ctx context.Context, batch []ingestion.Record) error

// Source produces records until it is exhausted or ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
	Close() error
}

// New builds the source selected by cfg.Source.Type.
func New(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Source.Type {
	case "json":
		return NewJSONFile(cfg.Source.Path), nil
	case "postgres":
		src, err := NewPostgres(ctx, cfg.Postgres, cfg.Source.Query)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "kafka":
		return NewKafka(cfg.Kafka), nil
	}
	return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
}

// batcher accumulates records and flushes them to a sink.
type batcher struct {
	sink  Sink
	size  int
	batch []ingestion.Record
	total int
}

func newBatcher(sink Sink, size int) *batcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &batcher{sink: sink, size: size, batch: make([]ingestion.Record, 0, size)}
}

func (b *batcher) add(ctx context.Context, r ingestion.Record) error {
	b.batch = append(b.batch, r)
	if len(b.batch) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.batch) == 0 {
		return nil
	}
	if err := b.sink(ctx, b.batch); err != nil {
		return err
	}
	b.total += len(b.batch)
	b.batch = b.batch[:0]
	return nil
}
