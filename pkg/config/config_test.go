package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.DefaultField != "Name" || cfg.Search.DefaultLimit != 10 {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.Index.MergeFanout != 10 || cfg.Index.FlushThresholdBytes != 16<<20 {
		t.Errorf("index defaults = %+v", cfg.Index)
	}
	if len(cfg.Index.Analyzer.StopWords) != len(DefaultStopWords) {
		t.Errorf("stop words = %v", cfg.Index.Analyzer.StopWords)
	}
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
index:
  dataDir: /tmp/idx
  mergeFanout: 4
  storedFields: [Name]
search:
  cacheTTL: 5s
source:
  type: postgres
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Index.DataDir != "/tmp/idx" || cfg.Index.MergeFanout != 4 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Index.FlushThresholdBytes != 16<<20 {
		t.Errorf("unset flushThresholdBytes lost its default: %d", cfg.Index.FlushThresholdBytes)
	}
	if !cfg.Index.Analyzer.Lowercase {
		t.Error("unset analyzer.lowercase lost its default")
	}
	if cfg.Search.CacheTTL != 5*time.Second || cfg.Source.Type != "postgres" {
		t.Errorf("search = %+v, source = %+v", cfg.Search, cfg.Source)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEARCH_INDEX_DATA_DIR", "/data/env")
	t.Setenv("SEARCH_INDEX_MERGE_FANOUT", "3")
	t.Setenv("SEARCH_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SEARCH_REDIS_ADDR", "cache:6379")
	t.Setenv("SEARCH_METRICS_PORT", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Index.DataDir != "/data/env" || cfg.Index.MergeFanout != 3 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Metrics.Enabled {
		t.Error("invalid metrics port enabled metrics")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"fanout", func(c *Config) { c.Index.MergeFanout = 1 }, "index.mergeFanout"},
		{"threshold", func(c *Config) { c.Index.FlushThresholdBytes = 0 }, "index.flushThresholdBytes"},
		{"stemmer", func(c *Config) { c.Index.Analyzer.Stemmer = "latin" }, "index.analyzer.stemmer"},
		{"stored field", func(c *Config) { c.Index.StoredFields = []string{" "} }, "index.storedFields"},
		{"default field", func(c *Config) { c.Search.DefaultField = "" }, "search.defaultField"},
		{"source", func(c *Config) { c.Source.Type = "csv" }, "source.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ve *apperrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if _, ok := ve.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", ve.Fields, tt.field)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDSN(t *testing.T) {
	p := Default().Postgres
	want := "host=localhost port=5432 user=searchcore password=localdev dbname=searchcore sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
