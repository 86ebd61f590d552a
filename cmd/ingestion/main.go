// Command ingestion publishes documents from a json or postgres source onto
// the Kafka document topic, for an indexer running with a kafka source.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml] [-source json]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	sourceType := flag.String("source", "", "json or postgres (source.type when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)
	if *sourceType != "" {
		cfg.Source.Type = *sourceType
	}
	if cfg.Source.Type == "kafka" {
		slog.Error("ingestion needs a json or postgres source; kafka is its destination")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to open source", "source", cfg.Source.Type, "error", err)
		os.Exit(1)
	}
	defer src.Close()

	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)

	stats, err := publisher.New(producer, cfg.Source.Fields).Run(ctx, src)
	if err != nil {
		slog.Error("ingestion failed", "published", stats.Published, "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion finished", "published", stats.Published, "rejected", stats.Rejected)
}
