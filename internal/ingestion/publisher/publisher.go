// Package publisher feeds records from a source onto the Kafka document
// topic, where the indexer's Kafka source picks them up. Records are
// validated first so that a bad record is reported at the producer instead
// of being dropped silently by the indexer.
package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

// Producer is the part of kafka.Producer the publisher needs.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Stats counts what a run published.
type Stats struct {
	Published int `json:"published"`
	Rejected  int `json:"rejected"`
}

type Publisher struct {
	producer Producer
	allow    map[string]bool
	logger   *slog.Logger
}

// New returns a publisher that keeps only the fields named in fields, or
// every field when fields is empty.
func New(producer Producer, fields []string) *Publisher {
	return &Publisher{
		producer: producer,
		allow:    ingestion.AllowList(fields),
		logger:   logger.WithComponent("publisher"),
	}
}

// Run drains src onto the topic.
func (p *Publisher) Run(ctx context.Context, src source.Source) (Stats, error) {
	var stats Stats
	err := src.Run(ctx, func(ctx context.Context, batch []ingestion.Record) error {
		events := make([]kafka.Event, 0, len(batch))
		for _, r := range batch {
			doc := r.Document(p.allow)
			if err := validator.ValidateDocument(doc); err != nil {
				stats.Rejected++
				p.logger.Warn("record rejected", "key", r.Key, "error", err)
				continue
			}
			key := r.Key
			if key == "" {
				key = contentKey(r)
			}
			events = append(events, kafka.Event{
				Key:   key,
				Value: ingestion.Record{Key: key, Fields: doc.Fields},
			})
		}
		if len(events) == 0 {
			return nil
		}
		if err := p.producer.PublishBatch(ctx, events); err != nil {
			return err
		}
		stats.Published += len(events)
		return nil
	})
	p.logger.Info("publish finished",
		"source", src.Name(),
		"published", stats.Published,
		"rejected", stats.Rejected,
	)
	return stats, err
}

// contentKey derives a partition key for records without one, so identical
// records land on the same partition.
func contentKey(r ingestion.Record) string {
	h := sha256.New()
	for _, f := range r.Fields {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write([]byte(f.Value))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}
