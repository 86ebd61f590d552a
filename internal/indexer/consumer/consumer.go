// Package consumer drives the indexing pipeline: it takes record batches
// from a source and adds them to the index writer.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

// Writer is the part of the index writer the consumer feeds.
type Writer interface {
	AddBatch(ctx context.Context, docs []document.Document) ([]document.ID, error)
}

// IndexConsumer adds records to a Writer. Records the writer rejects are
// logged with their source key and skipped; any other error stops the
// source.
type IndexConsumer struct {
	writer   Writer
	allow    map[string]bool
	indexed  atomic.Int64
	rejected atomic.Int64
}

// New keeps only the fields named in fields, or every field when fields is
// empty.
func New(w Writer, fields []string) *IndexConsumer {
	return &IndexConsumer{
		writer: w,
		allow:  ingestion.AllowList(fields),
	}
}

// Run drains src into the writer. It blocks until src is exhausted or ctx
// is cancelled.
func (ic *IndexConsumer) Run(ctx context.Context, src source.Source) error {
	log := ic.log(ctx)
	log.Info("index consumer starting", "source", src.Name())
	err := src.Run(ctx, ic.Handle)
	log.Info("index consumer stopped",
		"source", src.Name(),
		"indexed", ic.indexed.Load(),
		"rejected", ic.rejected.Load(),
	)
	return err
}

// Handle is a source.Sink.
func (ic *IndexConsumer) Handle(ctx context.Context, batch []ingestion.Record) error {
	docs := make([]document.Document, len(batch))
	for i, r := range batch {
		docs[i] = r.Document(ic.allow)
	}
	ids, err := ic.writer.AddBatch(ctx, docs)
	var batchErr *apperrors.BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return err
	}
	rejected := 0
	log := ic.log(ctx)
	if batchErr != nil {
		rejected = len(batchErr.Failures)
		for _, f := range batchErr.Failures {
			log.Warn("record rejected",
				"key", batch[f.Index].Key,
				"error", f.Err,
			)
		}
	}
	ic.indexed.Add(int64(len(ids) - rejected))
	ic.rejected.Add(int64(rejected))
	log.Debug("batch indexed", "size", len(batch), "rejected", rejected)
	return nil
}

// log picks up attributes the caller attached with logger.WithAttrs.
func (ic *IndexConsumer) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx).With("component", "index-consumer")
}

// Counts returns how many records were indexed and rejected so far.
func (ic *IndexConsumer) Counts() (indexed, rejected int64) {
	return ic.indexed.Load(), ic.rejected.Load()
}
