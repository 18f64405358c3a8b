package dedupe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
)

// DefaultPageSize is the page size used when reading the store.
const DefaultPageSize = 1000

// ExistenceIndex is the set of fingerprints already present in the store.
type ExistenceIndex struct {
	prefixLen int
	keys      map[core.FingerprintKey]struct{}
	scanned   int
}

// NewExistenceIndex returns an empty index for the given prefix length.
func NewExistenceIndex(prefixLen int) *ExistenceIndex {
	return &ExistenceIndex{
		prefixLen: prefixLen,
		keys:      make(map[core.FingerprintKey]struct{}),
	}
}

// Add records the fingerprint of text.
func (x *ExistenceIndex) Add(text string) {
	x.keys[core.Fingerprint(text, x.prefixLen)] = struct{}{}
	x.scanned++
}

// Contains reports whether text's fingerprint is present.
func (x *ExistenceIndex) Contains(text string) bool {
	_, ok := x.keys[core.Fingerprint(text, x.prefixLen)]
	return ok
}

// Len returns the number of distinct fingerprints.
func (x *ExistenceIndex) Len() int {
	return len(x.keys)
}

// Scanned returns how many rows were read to build the index.
func (x *ExistenceIndex) Scanned() int {
	return x.scanned
}

// Snapshot reads every stored record in pages and indexes its content.
func Snapshot(ctx context.Context, lister storage.RecordLister, prefixLen, pageSize int) (*ExistenceIndex, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	idx := NewExistenceIndex(prefixLen)

	var after core.ID
	for {
		page, err := lister.ListRecords(ctx, storage.Query{AfterID: after, Limit: pageSize})
		if err != nil {
			return nil, fmt.Errorf("snapshot after id %d: %w", after, err)
		}
		for _, r := range page {
			idx.Add(r.Content)
			after = r.ID
		}
		if len(page) < pageSize {
			break
		}
	}

	slog.Debug("existence snapshot built", "rows", idx.Scanned(), "fingerprints", idx.Len())
	return idx, nil
}

// Missing returns the items whose fingerprint is not in idx, in input order.
func Missing[T Passage](idx *ExistenceIndex, items []T) []T {
	positions := MissingIndices(idx, items)
	out := make([]T, len(positions))
	for i, pos := range positions {
		out[i] = items[pos]
	}
	return out
}

// MissingIndices is Missing reporting positions in items instead of the items.
func MissingIndices[T Passage](idx *ExistenceIndex, items []T) []int {
	out := make([]int, 0, len(items))
	for i, item := range items {
		if !idx.Contains(item.Text()) {
			out = append(out, i)
		}
	}
	return out
}
