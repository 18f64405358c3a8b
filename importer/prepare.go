package importer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/scriptorium/core"
)

// Metadata keys written by Prepare and Import.
const (
	MetaSource             = "source"
	MetaPage               = "page"
	MetaBook               = "book"
	MetaChunkID            = "chunk_id"
	MetaEmbeddingModel     = "embedding_model"
	MetaEmbeddingCreatedAt = "embedding_created_at"
	MetaImportRunID        = "import_run_id"
)

// Skip records an entry that Prepare refused.
type Skip struct {
	Index int // position in the slice given to PrepareAll
	Title string
	Err   error
}

// Prepare converts a staged entry into a store record. Text fields are
// stripped of control characters and provenance is flattened into metadata;
// absent fields are left out. The entry must carry a valid embedding of
// dimension dim.
func Prepare(entry *core.Entry, dim int) (*core.Record, error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: entry is nil", core.ErrInvalidRecord)
	}
	content := core.CleanText(entry.Content)
	if content == "" {
		return nil, core.ErrEmptyContent
	}
	if entry.Embedding == nil {
		return nil, core.ErrMissingEmbedding
	}
	if err := core.ValidateEmbedding(entry.Embedding.Vector, dim); err != nil {
		return nil, err
	}

	meta := core.Metadata{}
	if s := core.CleanText(entry.Source); s != "" {
		meta[MetaSource] = s
	}
	if entry.Page > 0 {
		meta[MetaPage] = entry.Page
	}
	if s := core.CleanText(entry.Book); s != "" {
		meta[MetaBook] = s
	}
	if s := core.CleanText(entry.ChunkID); s != "" {
		meta[MetaChunkID] = s
	}
	if s := core.CleanText(entry.Embedding.Model); s != "" {
		meta[MetaEmbeddingModel] = s
	}
	if !entry.Embedding.CreatedAt.IsZero() {
		meta[MetaEmbeddingCreatedAt] = entry.Embedding.CreatedAt.UTC().Format(time.RFC3339)
	}

	vector := make([]float32, len(entry.Embedding.Vector))
	copy(vector, entry.Embedding.Vector)

	return &core.Record{
		Category:  core.CleanText(entry.Category),
		Title:     core.CleanText(entry.Title),
		Content:   content,
		Embedding: vector,
		Dimension: len(vector),
		Metadata:  meta,
	}, nil
}

// PrepareAll prepares every entry, keeping input order. Refused entries are
// logged and returned as skips; they never reach the importer.
func PrepareAll(entries []*core.Entry, dim int) ([]*core.Record, []Skip) {
	logger := slog.Default().With("component", "prepare")
	records := make([]*core.Record, 0, len(entries))
	var skips []Skip

	for i, e := range entries {
		r, err := Prepare(e, dim)
		if err != nil {
			title := ""
			if e != nil {
				title = e.Title
			}
			logger.Warn("skipping entry", "index", i, "title", title, "err", err)
			skips = append(skips, Skip{Index: i, Title: title, Err: err})
			continue
		}
		records = append(records, r)
	}

	return records, skips
}
