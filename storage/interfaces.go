package storage

import (
	"context"

	"github.com/poiesic/scriptorium/core"
)

// Query selects a page of records. Records are always returned in ID order,
// which is insertion order.
type Query struct {
	// AfterID skips records with ID <= AfterID. Zero starts at the beginning.
	AfterID core.ID
	// Offset skips this many matching records after AfterID.
	Offset int
	// Limit caps the page size. Zero or negative returns every match.
	Limit int
	// Category restricts results to one category when non-empty.
	Category string
}

// Filter restricts CountRecords.
type Filter struct {
	Category     string
	EmbeddedOnly bool
}

// RecordLister pages through stored records in ID order.
type RecordLister interface {
	ListRecords(ctx context.Context, q Query) ([]*core.Record, error)
}

// RecordCounter counts stored records.
type RecordCounter interface {
	CountRecords(ctx context.Context, f Filter) (int, error)
}

// RecordWriter inserts records.
type RecordWriter interface {
	// AddRecords inserts records in a single atomic call. It returns the rows
	// the store acknowledged, with IDs and timestamps populated. A nil error
	// with fewer rows than requested means the remainder was not written.
	AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error)
}

// VectorSearcher finds records by embedding similarity.
type VectorSearcher interface {
	// FindSimilar returns records whose cosine similarity to vector is at
	// least minSimilarity, highest score first, up to limit results.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)
}

// KnowledgeRepository provides operations on the knowledge table.
// Implementations must be safe for concurrent use.
type KnowledgeRepository interface {
	RecordLister
	RecordCounter
	RecordWriter
	VectorSearcher

	// UpdateEmbedding overwrites the vector of an existing record.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error

	// DeleteRecords removes records by ID.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteRecords(ctx context.Context, ids ...core.ID) error

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.Record, error)

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository provides checkpoint persistence for resumable passes.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
