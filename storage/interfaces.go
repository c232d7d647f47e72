package storage

import (
	"context"

	"drive-csv-ingest/models"
)

// Store is the datastore the batch writer commits into.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one batch transaction. InsertIgnore reports whether a row was
// inserted; false with a nil error means the ad_id already existed.
type Tx interface {
	InsertIgnore(ctx context.Context, listing *models.CarListing) (bool, error)
	Commit() error
	Rollback() error
}

// ListingWriter is the interface any listing sink must satisfy.
type ListingWriter interface {
	Add(ctx context.Context, listing *models.CarListing)
	Flush(ctx context.Context)
	Result() WriteResult
}

// RejectWriter is the interface for persisting rows that were not ingested.
type RejectWriter interface {
	WriteReject(line int, reason string, headers []string, cells []string) error
	Close() error
}

// BatchObserver is told about every batch outcome.
type BatchObserver interface {
	BatchCommitted(index, size, inserted int)
	BatchFailed(index, size int, err error)
}
