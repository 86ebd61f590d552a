package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// JSONFile reads a profiles file: either an object mapping a key to each
// record, or an array of records. Records are streamed, so the file is
// never held in memory as a whole.
type JSONFile struct {
	path      string
	batchSize int
	logger    *slog.Logger
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{
		path:      path,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "json-source", "path", path),
	}
}

func (s *JSONFile) Name() string { return "json" }

func (s *JSONFile) Run(ctx context.Context, sink Sink) error {
	f, err := os.Open(s.path)
	if err != nil {
		return apperrors.IO("opening profiles file", err)
	}
	defer f.Close()
	b := newBatcher(sink, s.batchSize)
	if err := ReadRecords(ctx, bufio.NewReader(f), func(r ingestion.Record) error {
		return b.add(ctx, r)
	}); err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	if err := b.flush(ctx); err != nil {
		return err
	}
	s.logger.Info("profiles read", "records", b.total)
	return nil
}

func (s *JSONFile) Close() error { return nil }

// ReadRecords streams the records of r to fn in file order.
func ReadRecords(ctx context.Context, r io.Reader, fn func(ingestion.Record) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return fmt.Errorf("expected an object or array of records, got %v", tok)
	}
	for i := 0; dec.More(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := strconv.Itoa(i)
		if delim == '{' {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key = tok.(string)
		}
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return fmt.Errorf("record %s: expected an object, got %v", key, tok)
		}
		fields, err := ingestion.DecodeFields(dec)
		if err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		if err := fn(ingestion.Record{Key: key, Fields: fields}); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
