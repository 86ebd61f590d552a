package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// DefaultQuery reads a profiles table with the same fields as profiles.json.
const DefaultQuery = `SELECT id, name AS "Name", surname AS "Surname", address AS "Address" FROM profiles ORDER BY id`

// Postgres turns the rows of a query into records: the first column is the
// record key, every other column a field named after the column. NULL
// columns are skipped.
type Postgres struct {
	client    *postgres.Client
	query     string
	batchSize int
	logger    *slog.Logger
}

func NewPostgres(ctx context.Context, cfg config.PostgresConfig, query string) (*Postgres, error) {
	client, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if query == "" {
		query = DefaultQuery
	}
	return &Postgres{
		client:    client,
		query:     query,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "postgres-source", "database", cfg.Database),
	}, nil
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) Run(ctx context.Context, sink Sink) error {
	b := newBatcher(sink, s.batchSize)
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, s.query)
		if err != nil {
			return fmt.Errorf("running source query: %w", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		if len(cols) < 2 {
			return fmt.Errorf("source query must return a key column and at least one field, got %d columns", len(cols))
		}
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scanning row: %w", err)
			}
			r := ingestion.Record{Key: values[0].String}
			for i := 1; i < len(cols); i++ {
				if values[i].Valid {
					r.Fields = append(r.Fields, document.Text(cols[i], values[i].String))
				}
			}
			if err := b.add(ctx, r); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}
	if err := b.flush(ctx); err != nil {
		return err
	}
	s.logger.Info("rows read", "records", b.total)
	return nil
}

func (s *Postgres) Close() error {
	return s.client.Close()
}
