package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
	"github.com/poiesic/scriptorium/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedWriter acknowledges rows according to a per-call script.
type scriptedWriter struct {
	mu    sync.Mutex
	calls int
	sizes []int
	fail  map[int]error // call number (1-based) -> error
	short map[int]int   // call number -> rows acknowledged
	rows  []*core.Record
}

func (w *scriptedWriter) AddRecords(_ context.Context, records ...*core.Record) ([]*core.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.sizes = append(w.sizes, len(records))
	if err, ok := w.fail[w.calls]; ok {
		return nil, err
	}
	n := len(records)
	if s, ok := w.short[w.calls]; ok {
		n = s
	}
	w.rows = append(w.rows, records[:n]...)
	return records[:n], nil
}

func makeRecords(n int) []*core.Record {
	records := make([]*core.Record, n)
	for i := range records {
		records[i] = &core.Record{
			Content:   fmt.Sprintf("passage %d", i),
			Embedding: []float32{1, 0, 0, 0},
			Dimension: testDim,
		}
	}
	return records
}

func TestImport_FailedChunkDoesNotStopRun(t *testing.T) {
	w := &scriptedWriter{fail: map[int]error{2: errors.New("connection reset")}}
	im, err := New(w, Options{BatchSize: 100, Mode: core.Execute})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(250))
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 50}, w.sizes)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 150, report.SuccessCount)
	assert.Equal(t, 100, report.ErrorCount)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0], "connection reset")
	assert.Contains(t, report.Errors[1], "records 101-200")

	require.Len(t, report.ChunkResults, 3)
	assert.Equal(t, ChunkCommitted, report.ChunkResults[0].Status)
	assert.Equal(t, ChunkFailed, report.ChunkResults[1].Status)
	assert.Equal(t, ChunkCommitted, report.ChunkResults[2].Status)
}

func TestImport_ShortAcknowledgement(t *testing.T) {
	w := &scriptedWriter{short: map[int]int{1: 7}}
	im, err := New(w, Options{BatchSize: 10, Mode: core.Execute})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(10))
	require.NoError(t, err)

	assert.Equal(t, 7, report.SuccessCount)
	assert.Equal(t, 3, report.ErrorCount)
	assert.Equal(t, ChunkPartial, report.ChunkResults[0].Status)
	assert.ErrorIs(t, report.ChunkResults[0].Err, ErrShortAcknowledgement)
	assert.Contains(t, report.Errors[1], "records 8-10")
}

func TestImport_NoRowsReturnedIsFailure(t *testing.T) {
	w := &scriptedWriter{short: map[int]int{1: 0}}
	im, err := New(w, Options{BatchSize: 5, Mode: core.Execute})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(5))
	require.NoError(t, err)

	assert.Equal(t, 0, report.SuccessCount)
	assert.Equal(t, 5, report.ErrorCount)
	assert.Equal(t, ChunkFailed, report.ChunkResults[0].Status)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	w := &scriptedWriter{}
	im, err := New(w, Options{BatchSize: 4})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(10))
	require.NoError(t, err)

	assert.Zero(t, w.calls)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 0, report.SuccessCount)
	for _, c := range report.ChunkResults {
		assert.Equal(t, ChunkPlanned, c.Status)
	}
}

func TestImport_ZeroOptionsIsDryRun(t *testing.T) {
	w := &scriptedWriter{}
	im, err := New(w, Options{})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(3))
	require.NoError(t, err)

	assert.Zero(t, w.calls)
	assert.Equal(t, core.DryRun, report.Mode)
	assert.Zero(t, report.SuccessCount)
	require.Len(t, report.ChunkResults, 1)
	assert.Equal(t, ChunkPlanned, report.ChunkResults[0].Status)
	assert.Equal(t, 3, report.ChunkResults[0].Requested)
}

func TestImport_TagsRunIDWithoutMutatingInput(t *testing.T) {
	w := &scriptedWriter{}
	im, err := New(w, Options{Mode: core.Execute, RunID: "run-1"})
	require.NoError(t, err)

	records := makeRecords(2)
	report, err := im.Import(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	for _, r := range w.rows {
		assert.Equal(t, "run-1", r.Metadata[MetaImportRunID])
	}
	assert.Nil(t, records[0].Metadata)
}

func TestImport_GeneratesRunID(t *testing.T) {
	im, err := New(&scriptedWriter{}, Options{Mode: core.Execute})
	require.NoError(t, err)

	a, err := im.Import(context.Background(), makeRecords(1))
	require.NoError(t, err)
	b, err := im.Import(context.Background(), makeRecords(1))
	require.NoError(t, err)

	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestImport_CanceledBeforeFirstChunk(t *testing.T) {
	w := &scriptedWriter{}
	im, err := New(w, Options{Mode: core.Execute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := im.Import(ctx, makeRecords(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.calls)
	assert.Zero(t, report.Chunks)
}

func TestImport_SampleErrorsBounded(t *testing.T) {
	fail := map[int]error{}
	for i := 1; i <= 5; i++ {
		fail[i] = errors.New("boom")
	}
	im, err := New(&scriptedWriter{fail: fail}, Options{BatchSize: 1, Mode: core.Execute, ErrorSample: 3})
	require.NoError(t, err)

	report, err := im.Import(context.Background(), makeRecords(5))
	require.NoError(t, err)

	assert.Len(t, report.Errors, 10)
	assert.Len(t, report.SampleErrors(), 3)
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = New(&scriptedWriter{}, Options{BatchSize: -1})
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestImport_IntoBadgerStore(t *testing.T) {
	repo, _, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})

	im, err := New(repo, Options{BatchSize: 3, Mode: core.Execute})
	require.NoError(t, err)
	report, err := im.Import(context.Background(), makeRecords(7))
	require.NoError(t, err)
	assert.Equal(t, 7, report.SuccessCount)

	v, err := VerifyStore(context.Background(), repo, 7)
	require.NoError(t, err)
	assert.True(t, v.OK)

	rows, err := repo.ListRecords(context.Background(), storage.Query{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, report.RunID, rows[0].Metadata[MetaImportRunID])
}
