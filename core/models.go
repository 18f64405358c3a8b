package core

import (
	"time"
)

// ID identifies a persisted record. It is assigned by the store's sequence
// on insert; zero means the record has not been persisted yet.
type ID uint64

const (
	// DefaultPrefixLen is the number of leading characters of content that
	// participate in a fingerprint.
	DefaultPrefixLen = 100

	// DefaultDimension is the embedding vector length expected by the store.
	DefaultDimension = 1024
)

// Metadata holds free-form provenance for a record. Values are scalars
// (string, number, bool).
type Metadata map[string]any

// EmbeddingInfo describes a generated vector and where it came from.
type EmbeddingInfo struct {
	Vector    []float32
	Dimension int
	Model     string
	CreatedAt time.Time
}

// Entry is a raw passage produced by the upstream extraction process.
// Entries live in staging files and are turned into Records on import.
type Entry struct {
	Category  string
	Title     string
	Content   string
	Source    string
	Book      string
	Page      int    // 0 when the extractor did not report a page
	ChunkID   string // "" when the extractor did not report a chunk
	Embedding *EmbeddingInfo
}

// Text returns the content used for fingerprinting.
func (e *Entry) Text() string {
	if e == nil {
		return ""
	}
	return e.Content
}

// HasEmbedding reports whether the entry carries a vector of the given dimension.
func (e *Entry) HasEmbedding(dim int) bool {
	return e != nil && e.Embedding != nil && ValidateEmbedding(e.Embedding.Vector, dim) == nil
}

// WithEmbedding returns a shallow copy of the entry carrying info.
func (e *Entry) WithEmbedding(info *EmbeddingInfo) *Entry {
	cp := *e
	cp.Embedding = info
	return &cp
}

// Record is a row of the knowledge table.
type Record struct {
	ID        ID
	Category  string
	Title     string
	Content   string
	Embedding []float32
	Dimension int
	Metadata  Metadata
	CreatedAt time.Time // When the row was inserted
	UpdatedAt time.Time // When the row was last written
}

// Text returns the content used for fingerprinting.
func (r *Record) Text() string {
	if r == nil {
		return ""
	}
	return r.Content
}

// SearchResult is a record matched by vector similarity.
type SearchResult struct {
	Record *Record
	Score  float32
}

// Checkpoint records how far a long-running pass over the store has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}

// Mode selects whether a destructive operation writes or only reports.
type Mode int

const (
	// DryRun computes and reports what would change without writing.
	DryRun Mode = iota
	// Execute performs the writes.
	Execute
)

func (m Mode) String() string {
	switch m {
	case DryRun:
		return "dry-run"
	case Execute:
		return "execute"
	default:
		return "unknown"
	}
}
