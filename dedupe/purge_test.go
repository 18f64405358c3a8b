package dedupe

import (
	"context"
	"testing"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
	"github.com/poiesic/scriptorium/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func setupStore(t *testing.T, contents ...string) storage.KnowledgeRepository {
	t.Helper()
	repo, _, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	var records []*core.Record
	for _, c := range contents {
		records = append(records, &core.Record{
			Content:   c,
			Embedding: []float32{1, 0, 0, 0},
			Dimension: testDim,
		})
	}
	if len(records) > 0 {
		_, err = repo.AddRecords(context.Background(), records...)
		require.NoError(t, err)
	}
	return repo
}

func TestPurger_DryRunDeletesNothing(t *testing.T) {
	repo := setupStore(t, "乾", "坤", "乾", "乾")

	report, err := NewPurger(repo, PurgeOptions{Mode: core.DryRun}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 2, report.Unique)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 0, report.Deleted)

	count, err := repo.CountRecords(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestPurger_ExecuteKeepsEarliest(t *testing.T) {
	repo := setupStore(t, "乾", "坤", "乾", "震", "坤")
	ctx := context.Background()

	before, err := repo.ListRecords(ctx, storage.Query{})
	require.NoError(t, err)

	report, err := NewPurger(repo, PurgeOptions{Mode: core.Execute, BatchSize: 1}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 0, report.Failed)

	after, err := repo.ListRecords(ctx, storage.Query{})
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[1].ID, after[1].ID)
	assert.Equal(t, before[3].ID, after[2].ID)
}

// flakyDeleter fails any call that includes a poisoned id.
type flakyDeleter struct {
	storage.KnowledgeRepository
	poisoned core.ID
}

func (f *flakyDeleter) DeleteRecords(ctx context.Context, ids ...core.ID) error {
	for _, id := range ids {
		if id == f.poisoned {
			return storage.ErrNotFound
		}
	}
	return f.KnowledgeRepository.DeleteRecords(ctx, ids...)
}

func TestPurger_IsolatesFailedIDs(t *testing.T) {
	repo := setupStore(t, "a", "a", "a", "a")
	ctx := context.Background()
	all, err := repo.ListRecords(ctx, storage.Query{})
	require.NoError(t, err)

	store := &flakyDeleter{KnowledgeRepository: repo, poisoned: all[2].ID}
	report, err := NewPurger(store, PurgeOptions{Mode: core.Execute}).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Duplicates)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
}

func TestPurger_EmptyStore(t *testing.T) {
	repo := setupStore(t)
	report, err := NewPurger(repo, PurgeOptions{Mode: core.Execute}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
	assert.Equal(t, 0, report.Duplicates)
}
