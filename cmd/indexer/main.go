// Command indexer builds an index from the configured document source.
//
// With a json or postgres source it reads every record, commits and exits.
// With a kafka source it follows the topic until interrupted, committing
// every index.commitInterval and serving /metrics when metrics are enabled.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-merge]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/health"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/search"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	merge := flag.Bool("merge", false, "merge all segments into one after ingesting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)

	if err := run(cfg, *merge); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, merge bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	slog.Info("starting indexer",
		"data_dir", cfg.Index.DataDir,
		"source", cfg.Source.Type,
	)

	// Another indexer may still be releasing the directory.
	w, err := resilience.RetryValue(ctx, "open-writer", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrLockHeld)
		},
	}, func() (*search.Writer, error) {
		return search.OpenWriter(cfg.Index.DataDir, cfg.Index, search.WithMetrics(m))
	})
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("closing index failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("index", health.Probe(func(context.Context) error {
			_, err := w.Stats()
			return err
		}))
		shutdown := metrics.StartServer(m, cfg.Metrics.Port, checker.Handler())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	src, err := source.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	if cfg.Source.Type == "kafka" {
		w.StartCommitLoop(ctx)
	}

	ic := consumer.New(w, cfg.Source.Fields)
	runCtx := logger.WithAttrs(ctx, "run_id", uuid.NewString(), "data_dir", cfg.Index.DataDir)
	if err := ic.Run(runCtx, src); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ingesting from %s: %w", src.Name(), err)
	}

	// The signal context may be done by now; the final commit must still run.
	if err := w.Commit(context.Background()); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if merge {
		if err := w.Merge(context.Background()); err != nil {
			return fmt.Errorf("merging: %w", err)
		}
	}

	indexed, rejected := ic.Counts()
	stats, err := w.Stats()
	if err != nil {
		return err
	}
	slog.Info("indexer finished",
		"indexed", indexed,
		"rejected", rejected,
		"generation", stats.Generation,
		"segments", stats.Segments,
		"live_docs", stats.LiveDocs,
	)
	return nil
}
