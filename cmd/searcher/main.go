// Command searcher runs one query against an index and prints the hits as
// JSON.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml] [-query Stefano] [-field Name] [-limit 10]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/search"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	query := flag.String("query", "Stefano", "query to run")
	field := flag.String("field", "", "default field for unqualified words (search.defaultField when empty)")
	limit := flag.Int("limit", 0, "maximum hits to return (search.defaultLimit when zero)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging)

	if *field == "" {
		*field = cfg.Search.DefaultField
	}
	if *limit == 0 {
		*limit = cfg.Search.DefaultLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, *query, *field, *limit)
	if err != nil {
		slog.Error("search failed", "query", *query, "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		slog.Error("writing results failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, query, field string, limit int) (*search.Result, error) {
	opts := []search.Option{
		search.WithScorer(cfg.Search.Scorer),
		search.WithDefaultField(field),
		search.WithMaxResults(cfg.Search.MaxResults),
		search.WithConcurrency(cfg.Search.MaxConcurrentSegment),
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer client.Close()
			opts = append(opts, search.WithCache(client, cfg.Search.CacheTTL))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Search.CacheTTL)
		}
	}

	r, err := search.OpenReader(cfg.Index.DataDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", cfg.Index.DataDir, err)
	}
	defer r.Close()

	res, err := r.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("found %d document(s)", res.TotalHits), "query", query, "field", field)
	return res, nil
}
