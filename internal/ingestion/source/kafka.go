package source

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
)

// Kafka follows the document topic until ctx is cancelled. Each message is
// one record and is handed to the sink on its own; the message offset is
// committed once the sink accepts it. Messages that fail to decode are
// logged by the consumer and skipped.
type Kafka struct {
	cfg      config.KafkaConfig
	consumer *kafka.Consumer
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{cfg: cfg}
}

func (s *Kafka) Name() string { return "kafka" }

func (s *Kafka) Run(ctx context.Context, sink Sink) error {
	s.consumer = kafka.NewConsumer(s.cfg, func(ctx context.Context, key, value []byte) error {
		r, err := kafka.DecodeJSON[ingestion.Record](value)
		if err != nil {
			return err
		}
		r.Key = string(key)
		return sink(ctx, []ingestion.Record{r})
	})
	return s.consumer.Start(ctx)
}

func (s *Kafka) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}
