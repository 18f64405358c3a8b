package badger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
)

// KnowledgeRepository implements storage.KnowledgeRepository for BadgerDB.
type KnowledgeRepository struct {
	backend   *Backend
	idSeq     *badger.Sequence
	dimension int
}

var _ storage.KnowledgeRepository = (*KnowledgeRepository)(nil)

// NewKnowledgeRepository creates a new KnowledgeRepository. Every record it
// accepts must carry an embedding of the given dimension.
func NewKnowledgeRepository(backend *Backend, dimension int) (*KnowledgeRepository, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", storage.ErrInvalidQuery, dimension)
	}
	idSeq, err := backend.GetSequence(knowledgeIDSeq)
	if err != nil {
		return nil, err
	}

	return &KnowledgeRepository{
		backend:   backend,
		idSeq:     idSeq,
		dimension: dimension,
	}, nil
}

// Close releases the ID sequence.
func (r *KnowledgeRepository) Close() error {
	return r.idSeq.Release()
}

func (r *KnowledgeRepository) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// AddRecords inserts records in one transaction. Inputs are not modified;
// the returned copies carry the assigned IDs and timestamps.
func (r *KnowledgeRepository) AddRecords(ctx context.Context, records ...*core.Record) ([]*core.Record, error) {
	for i, record := range records {
		if err := core.ValidateRecord(record, r.dimension); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	added := make([]*core.Record, 0, len(records))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, record := range records {
			id, err := r.nextID()
			if err != nil {
				return err
			}
			row := *record
			row.ID = id
			row.CreatedAt = now
			row.UpdatedAt = now

			value, err := storage.MarshalRecord(&row)
			if err != nil {
				return err
			}
			if err := tx.Set(makeKnowledgeKey(row.ID), value); err != nil {
				return err
			}
			added = append(added, &row)
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return added, nil
}

// UpdateEmbedding overwrites the vector of an existing record.
func (r *KnowledgeRepository) UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error {
	if err := core.ValidateEmbedding(vector, r.dimension); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeKey(id)
		record, err := r.readRecord(tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		record.Embedding = slices.Clone(vector)
		record.Dimension = len(vector)
		record.UpdatedAt = time.Now().UTC()

		value, err := storage.MarshalRecord(record)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteRecords removes records by their IDs.
func (r *KnowledgeRepository) DeleteRecords(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeKnowledgeKey(id)
			if _, err := tx.Get(key); err != nil {
				if err == badger.ErrKeyNotFound {
					return fmt.Errorf("%w: id %d", storage.ErrNotFound, id)
				}
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRecord retrieves a single record by ID.
func (r *KnowledgeRepository) GetRecord(ctx context.Context, id core.ID) (*core.Record, error) {
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readRecord(tx, makeKnowledgeKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListRecords returns a page of records in ID order.
func (r *KnowledgeRepository) ListRecords(ctx context.Context, q storage.Query) ([]*core.Record, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", storage.ErrInvalidQuery, q.Offset)
	}

	var results []*core.Record
	skipped := 0
	err := r.scan(ctx, q.AfterID, func(record *core.Record) bool {
		if q.Category != "" && record.Category != q.Category {
			return true
		}
		if skipped < q.Offset {
			skipped++
			return true
		}
		results = append(results, record)
		return q.Limit <= 0 || len(results) < q.Limit
	})
	return results, err
}

// CountRecords counts records matching f.
func (r *KnowledgeRepository) CountRecords(ctx context.Context, f storage.Filter) (int, error) {
	if f.Category == "" && !f.EmbeddedOnly {
		return r.countKeys(ctx)
	}

	count := 0
	err := r.scan(ctx, 0, func(record *core.Record) bool {
		if f.Category != "" && record.Category != f.Category {
			return true
		}
		if f.EmbeddedOnly && len(record.Embedding) == 0 {
			return true
		}
		count++
		return true
	})
	return count, err
}

// FindSimilar scores every embedded record by cosine similarity.
func (r *KnowledgeRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult

	err := r.scan(ctx, 0, func(record *core.Record) bool {
		// Skip records without embeddings
		if len(record.Embedding) == 0 {
			return true
		}
		similarity := cosineSimilarity(vector, record.Embedding)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{
				Record: record,
				Score:  similarity,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, ID ascending on ties
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// scan visits records with ID > afterID in ID order until fn returns false.
func (r *KnowledgeRepository) scan(ctx context.Context, afterID core.ID, fn func(*core.Record) bool) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(knowledgePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(knowledgePrefix)
		if afterID > 0 {
			start = makeKnowledgeKey(afterID + 1)
		}

		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.Record
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fn(record) {
				return nil
			}
		}
		return nil
	}, false)
}

func (r *KnowledgeRepository) countKeys(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(knowledgePrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	}, false)
	return count, err
}

// readRecord reads a record by key. Returns nil, nil if the key is absent.
func (r *KnowledgeRepository) readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		return err
	})
	return record, err
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
