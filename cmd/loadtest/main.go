// Command loadtest runs queries from concurrent workers against an index
// for a fixed time and prints throughput and latency percentiles. Point it
// at a directory an indexer is writing to in order to measure searches
// concurrent with commits.
//
// Usage:
//
//	go run ./cmd/loadtest [-config configs/development.yaml] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/search"
)

var defaultQueries = []string{
	"Stefano",
	"Maria",
	"Surname:Rossi",
	"Stefano OR Luca",
	"Stefano AND NOT Surname:Verdi",
	`Address:"via roma"`,
	"Address:(Milano OR Torino)",
	"Name:Giulia",
}

type Stats struct {
	total     atomic.Int64
	errs      atomic.Int64
	hits      atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	kinds     map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make([]time.Duration, 0, 100000),
		kinds:     make(map[string]int64),
	}
}

func (s *Stats) Record(took time.Duration, hits int, err error) {
	s.total.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs.Add(1)
		s.kinds[apperrors.Kind(err)]++
		return
	}
	s.hits.Add(int64(hits))
	s.latencies = append(s.latencies, took)
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryList := flag.String("queries", "", "semicolon-separated queries (a built-in set when empty)")
	limit := flag.Int("limit", 10, "hits per query")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})

	queries := defaultQueries
	if *queryList != "" {
		queries = strings.Split(*queryList, ";")
	}

	r, err := search.OpenReader(cfg.Index.DataDir,
		search.WithScorer(cfg.Search.Scorer),
		search.WithDefaultField(cfg.Search.DefaultField),
		search.WithConcurrency(cfg.Search.MaxConcurrentSegment),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening index %s: %v\n", cfg.Index.DataDir, err)
		os.Exit(1)
	}
	defer r.Close()

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Index:       %s\n", cfg.Index.DataDir)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Queries:     %d unique\n", len(queries))
	fmt.Println()

	stats := runLoadTest(r, queries, *concurrency, *limit, *duration)
	if !printReport(stats, *duration) {
		os.Exit(1)
	}
}

func runLoadTest(r *search.Reader, queries []string, concurrency, limit int, d time.Duration) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var wg sync.WaitGroup
	for w := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				start := time.Now()
				res, err := r.Search(ctx, queries[i%len(queries)], limit)
				if errors.Is(err, context.DeadlineExceeded) {
					return
				}
				hits := 0
				if res != nil {
					hits = res.TotalHits
				}
				stats.Record(time.Since(start), hits, err)
			}
		}()
	}
	wg.Wait()
	return stats
}

func printReport(stats *Stats, d time.Duration) bool {
	total := stats.total.Load()
	errs := stats.errs.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Queries:   %d\n", total)
	fmt.Printf("Errors:          %d\n", errs)
	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: no query completed.")
		return false
	}
	fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
	fmt.Printf("Queries/sec:     %.2f\n", float64(total)/d.Seconds())
	fmt.Printf("Avg Total Hits:  %.1f\n", float64(stats.hits.Load())/float64(max(total-errs, 1)))

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	kinds := make([]string, 0, len(stats.kinds))
	for k := range stats.kinds {
		kinds = append(kinds, k)
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	if len(kinds) > 0 {
		slices.Sort(kinds)
		fmt.Println()
		fmt.Println("=== Errors ===")
		for _, k := range kinds {
			fmt.Printf("  %s: %d\n", k, stats.kinds[k])
		}
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
