package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

// DefaultBatchSize is the number of listings committed per transaction.
const DefaultBatchSize = 10

// WriteResult tallies what happened to every listing handed to a writer.
// Processed + Skipped always equals the number of listings added.
type WriteResult struct {
	Processed     int
	Skipped       int
	Inserted      int
	Ignored       int
	Batches       int
	FailedBatches int
}

// BatchWriter persists listings in fixed-size batches, one transaction per
// batch. A failing batch is rolled back and counted as skipped; the next
// batch is attempted regardless.
type BatchWriter struct {
	store     Store
	batchSize int
	logger    *utils.Logger
	observer  BatchObserver

	pending []*models.CarListing
	result  WriteResult
}

// NewBatchWriter creates a BatchWriter. A batchSize below 1 uses DefaultBatchSize.
func NewBatchWriter(store Store, batchSize int, logger *utils.Logger) *BatchWriter {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &BatchWriter{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		pending:   make([]*models.CarListing, 0, batchSize),
	}
}

// SetObserver registers o to receive batch outcomes.
func (w *BatchWriter) SetObserver(o BatchObserver) {
	w.observer = o
}

// Add queues listing and writes a batch once batchSize listings are queued.
func (w *BatchWriter) Add(ctx context.Context, listing *models.CarListing) {
	w.pending = append(w.pending, listing)
	if len(w.pending) >= w.batchSize {
		w.writeBatch(ctx)
	}
}

// Flush writes whatever is queued as a final, possibly short, batch.
func (w *BatchWriter) Flush(ctx context.Context) {
	if len(w.pending) > 0 {
		w.writeBatch(ctx)
	}
}

// Result returns the tally so far.
func (w *BatchWriter) Result() WriteResult {
	return w.result
}

// WriteAll adds every listing and flushes.
func (w *BatchWriter) WriteAll(ctx context.Context, listings []*models.CarListing) WriteResult {
	for _, l := range listings {
		w.Add(ctx, l)
	}
	w.Flush(ctx)
	return w.result
}

func (w *BatchWriter) writeBatch(ctx context.Context) {
	batch := w.pending
	w.pending = make([]*models.CarListing, 0, w.batchSize)

	w.result.Batches++
	index := w.result.Batches

	inserted, err := w.commit(ctx, batch)
	if err != nil {
		w.result.Skipped += len(batch)
		w.result.FailedBatches++
		if w.logger != nil {
			w.logger.WithFields(map[string]any{
				"batch": index,
				"size":  len(batch),
				"first": batch[0].AdID,
			}).Error("[writer] Batch %d rolled back, %d rows skipped: %v", index, len(batch), err)
		}
		if w.observer != nil {
			w.observer.BatchFailed(index, len(batch), err)
		}
		return
	}

	w.result.Processed += len(batch)
	w.result.Inserted += inserted
	w.result.Ignored += len(batch) - inserted
	if w.observer != nil {
		w.observer.BatchCommitted(index, len(batch), inserted)
	}
}

func (w *BatchWriter) commit(ctx context.Context, batch []*models.CarListing) (int, error) {
	tx, err := w.store.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}

	inserted := 0
	for _, l := range batch {
		ok, err := tx.InsertIgnore(ctx, l)
		if err != nil {
			return 0, rollback(tx, fmt.Errorf("insert ad_id %q: %w", l.AdID, err))
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, rollback(tx, fmt.Errorf("commit: %w", err))
	}
	return inserted, nil
}

func rollback(tx Tx, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}

// DiscardWriter counts listings without storing them. Used for dry runs.
type DiscardWriter struct {
	result WriteResult
}

func (d *DiscardWriter) Add(_ context.Context, _ *models.CarListing) {
	d.result.Processed++
}

func (d *DiscardWriter) Flush(context.Context) {}

func (d *DiscardWriter) Result() WriteResult {
	return d.result
}
