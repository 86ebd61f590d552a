// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the index,
// the searcher, document sources and the supporting services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Source   SourceConfig   `yaml:"source"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AnalyzerConfig controls how field text is turned into terms.
type AnalyzerConfig struct {
	StopWords      []string `yaml:"stopWords" json:"stop_words"`
	MinTokenLength int      `yaml:"minTokenLength" json:"min_token_length"`
	Lowercase      bool     `yaml:"lowercase" json:"lowercase"`
	Stemmer        string   `yaml:"stemmer" json:"stemmer,omitempty"`
}

// IndexConfig controls the indexing engine's memory threshold, merge policy
// and which fields keep their raw text.
type IndexConfig struct {
	DataDir             string         `yaml:"dataDir"`
	Analyzer            AnalyzerConfig `yaml:"analyzer"`
	FlushThresholdBytes int64          `yaml:"flushThresholdBytes"`
	MergeFanout         int            `yaml:"mergeFanout"`
	StoredFields        []string       `yaml:"storedFields"`
	CommitInterval      time.Duration  `yaml:"commitInterval"`
	IDBlockSize         uint64         `yaml:"idBlockSize"`
}

// SearchConfig controls query parsing defaults and result limits.
type SearchConfig struct {
	DefaultField         string        `yaml:"defaultField"`
	DefaultLimit         int           `yaml:"defaultLimit"`
	MaxResults           int           `yaml:"maxResults"`
	Scorer               string        `yaml:"scorer"`
	MaxConcurrentSegment int           `yaml:"maxConcurrentSegmentReads"`
	CacheTTL             time.Duration `yaml:"cacheTTL"`
}

// SourceConfig selects where cmd/indexer reads documents from.
type SourceConfig struct {
	Type   string   `yaml:"type"`
	Path   string   `yaml:"path"`
	Fields []string `yaml:"fields"`
	Query  string   `yaml:"query"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	Topic         string   `yaml:"topic"`
}

// RedisConfig holds Redis connection parameters for the result cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultStopWords is the English stop-word list used when none is configured.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "if",
	"in", "into", "is", "it", "no", "not", "of", "on", "or", "such", "that",
	"the", "their", "then", "there", "these", "they", "this", "to", "was",
	"will", "with",
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// DefaultIndexConfig returns the index defaults rooted at dataDir.
func DefaultIndexConfig(dataDir string) IndexConfig {
	cfg := defaultConfig().Index
	cfg.DataDir = dataDir
	return cfg
}

// DefaultAnalyzerConfig returns the analyzer defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return defaultConfig().Index.Analyzer
}

func defaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			DataDir: "data/index",
			Analyzer: AnalyzerConfig{
				StopWords:      append([]string(nil), DefaultStopWords...),
				MinTokenLength: 1,
				Lowercase:      true,
			},
			FlushThresholdBytes: 16 * 1024 * 1024,
			MergeFanout:         10,
			IDBlockSize:         1024,
		},
		Search: SearchConfig{
			DefaultField:         "Name",
			DefaultLimit:         10,
			MaxResults:           1000,
			Scorer:               "bm25",
			MaxConcurrentSegment: 8,
			CacheTTL:             60 * time.Second,
		},
		Source: SourceConfig{
			Type: "json",
			Path: "resources/profiles.json",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchcore",
			User:            "searchcore",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchcore-indexer",
			Topic:         "documents",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	errs := make(map[string]string)
	if err := c.Index.Validate(); err != nil {
		var ve *apperrors.ValidationError
		if apperrors.As(err, &ve) {
			for k, v := range ve.Fields {
				errs[k] = v
			}
		}
	}
	if c.Search.DefaultField == "" {
		errs["search.defaultField"] = "default field is required"
	}
	if c.Search.DefaultLimit < 0 {
		errs["search.defaultLimit"] = "must not be negative"
	}
	if c.Search.MaxResults < 0 {
		errs["search.maxResults"] = "must not be negative"
	}
	switch c.Source.Type {
	case "json", "postgres", "kafka":
	default:
		errs["source.type"] = fmt.Sprintf("unknown source type %q", c.Source.Type)
	}
	if len(errs) > 0 {
		return &apperrors.ValidationError{Fields: errs}
	}
	return nil
}

// Validate checks the index section on its own; the embedding API calls it
// directly because it does not go through Load.
func (c IndexConfig) Validate() error {
	errs := make(map[string]string)
	if c.FlushThresholdBytes <= 0 {
		errs["index.flushThresholdBytes"] = "must be positive"
	}
	if c.MergeFanout < 2 {
		errs["index.mergeFanout"] = "must be at least 2"
	}
	if c.Analyzer.MinTokenLength < 0 {
		errs["index.analyzer.minTokenLength"] = "must not be negative"
	}
	switch c.Analyzer.Stemmer {
	case "", "none", "english":
	default:
		errs["index.analyzer.stemmer"] = fmt.Sprintf("unknown stemmer %q", c.Analyzer.Stemmer)
	}
	for _, f := range c.StoredFields {
		if strings.TrimSpace(f) == "" {
			errs["index.storedFields"] = "field names must not be empty"
		}
	}
	if len(errs) > 0 {
		return &apperrors.ValidationError{Fields: errs}
	}
	return nil
}

// applyEnvOverrides reads SEARCH_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SEARCH_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SEARCH_INDEX_FLUSH_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.FlushThresholdBytes = n
		}
	}
	if v := os.Getenv("SEARCH_INDEX_MERGE_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.MergeFanout = n
		}
	}
	if v := os.Getenv("SEARCH_INDEX_STORED_FIELDS"); v != "" {
		cfg.Index.StoredFields = strings.Split(v, ",")
	}
	if v := os.Getenv("SEARCH_DEFAULT_FIELD"); v != "" {
		cfg.Search.DefaultField = v
	}
	if v := os.Getenv("SEARCH_SCORER"); v != "" {
		cfg.Search.Scorer = v
	}
	if v := os.Getenv("SEARCH_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("SEARCH_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("SEARCH_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SEARCH_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SEARCH_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SEARCH_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SEARCH_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SEARCH_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SEARCH_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SEARCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SEARCH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SEARCH_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SEARCH_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SEARCH_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
			cfg.Metrics.Enabled = true
		}
	}
}
