package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/scriptorium/ai/mock"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
	"github.com/poiesic/scriptorium/metrics"
	"github.com/poiesic/scriptorium/storage"
	"github.com/poiesic/scriptorium/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func setupTestStore(t *testing.T) storage.KnowledgeRepository {
	t.Helper()
	repo, _, backend, err := badger.NewMemoryRepositories(testDim)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func newTestGenerator(t *testing.T, m *mock.MockEmbedder) *embed.Generator {
	t.Helper()
	gen, err := embed.NewGenerator(m, embed.Options{
		Model:     "test-model",
		Dimension: testDim,
		BaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return gen
}

func testConfig(mode core.Mode) Config {
	cfg := DefaultConfig()
	cfg.Dimension = testDim
	cfg.EmbedPause = 0
	cfg.ImportBatchSize = 2
	cfg.Mode = mode
	return cfg
}

func entries(contents ...string) []*core.Entry {
	out := make([]*core.Entry, len(contents))
	for i, c := range contents {
		out[i] = &core.Entry{Title: c, Content: c}
	}
	return out
}

func TestNewPipeline_ConfigErrors(t *testing.T) {
	store := setupTestStore(t)
	gen := newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim))

	_, err := NewPipeline(nil, gen, testConfig(core.Execute))
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil, testConfig(core.Execute))
	assert.ErrorIs(t, err, ErrGeneratorRequired)

	cfg := testConfig(core.Execute)
	cfg.ImportBatchSize = 0
	_, err = NewPipeline(store, gen, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig(core.Execute)
	cfg.Dimension = testDim + 1
	_, err = NewPipeline(store, gen, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPipeline_ExecuteImportsUniqueEntries(t *testing.T) {
	store := setupTestStore(t)
	m := metrics.New()
	p, err := NewPipeline(store, newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim)),
		testConfig(core.Execute), WithMetrics(m))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), entries("乾卦", "乾卦", "坤卦", "震卦", "巽卦"))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Input)
	assert.Equal(t, 4, report.Unique)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 4, report.Embedding.Embedded)
	assert.Equal(t, 4, report.Import.SuccessCount)
	assert.Equal(t, 2, report.Import.Chunks)
	require.NotNil(t, report.Verification)
	assert.True(t, report.Verification.OK)
	assert.Equal(t, 4, report.ExpectedTotal)

	rows, err := store.ListRecords(context.Background(), storage.Query{})
	require.NoError(t, err)
	var contents []string
	for _, r := range rows {
		contents = append(contents, r.Content)
	}
	assert.Equal(t, []string{"乾卦", "坤卦", "震卦", "巽卦"}, contents)
}

func TestPipeline_FailedEmbeddingIsSkipped(t *testing.T) {
	store := setupTestStore(t)
	m := mock.NewMockEmbedderWithDimension(testDim)
	m.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "坤") {
			return nil, errors.New("service unavailable")
		}
		return mock.Vector(text, testDim), nil
	})
	p, err := NewPipeline(store, newTestGenerator(t, m), testConfig(core.Execute))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), entries("乾卦", "坤卦", "震卦"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Embedding.Skipped)
	assert.Equal(t, 1, report.Embedding.Transient)
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0].Err, core.ErrMissingEmbedding)
	assert.Equal(t, 2, report.Import.SuccessCount)
	assert.True(t, report.Verification.OK)
}

func TestPipeline_DryRunWritesNothing(t *testing.T) {
	store := setupTestStore(t)
	m := mock.NewMockEmbedderWithDimension(testDim)
	p, err := NewPipeline(store, newTestGenerator(t, m), testConfig(core.DryRun))
	require.NoError(t, err)

	in := entries("乾卦", "坤卦")
	in[0].Embedding = &core.EmbeddingInfo{Vector: []float32{1, 0, 0, 0}, Dimension: testDim}

	report, err := p.Run(context.Background(), in)
	require.NoError(t, err)

	assert.Zero(t, m.CallCount())
	assert.Equal(t, 1, report.PendingEmbedding)
	assert.Equal(t, 1, report.Import.Chunks)
	assert.Equal(t, 0, report.Import.SuccessCount)
	assert.Nil(t, report.Verification)

	count, err := store.CountRecords(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipeline_ResumeSkipsStoredEntries(t *testing.T) {
	store := setupTestStore(t)
	gen := newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim))
	ctx := context.Background()

	first, err := NewPipeline(store, gen, testConfig(core.Execute))
	require.NoError(t, err)
	_, err = first.Run(ctx, entries("乾卦", "坤卦"))
	require.NoError(t, err)

	cfg := testConfig(core.Execute)
	cfg.Resume = true
	second, err := NewPipeline(store, gen, cfg)
	require.NoError(t, err)

	report, err := second.Run(ctx, entries("乾卦", "坤卦", "震卦"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.AlreadyStored)
	assert.Equal(t, 1, report.Import.SuccessCount)
	assert.Equal(t, 3, report.ExpectedTotal)
	assert.True(t, report.Verification.OK)
}

func TestPipeline_ExpectedTotalOverride(t *testing.T) {
	store := setupTestStore(t)
	cfg := testConfig(core.Execute)
	cfg.ExpectedTotal = 5
	p, err := NewPipeline(store, newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim)), cfg)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), entries("乾卦", "坤卦"))
	require.NoError(t, err)

	assert.False(t, report.Verification.OK)
	assert.Equal(t, 3, report.Verification.ShortBy)
}

func TestPipeline_Canceled(t *testing.T) {
	store := setupTestStore(t)
	p, err := NewPipeline(store, newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim)), testConfig(core.Execute))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx, entries("乾卦"))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Input)
}

func TestRunReport_SummaryBoundsErrors(t *testing.T) {
	r := &RunReport{Mode: core.Execute, Input: 20}
	for i := range 15 {
		r.Embedding.Errors = append(r.Embedding.Errors, embed.EntryError{Index: i, Err: errors.New("timeout")})
	}

	var buf bytes.Buffer
	r.Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Mode:             execute")
	assert.Equal(t, 10, strings.Count(out, "timeout"))
	assert.Contains(t, out, "... and 5 more")
}

func TestPipeline_ResumeMatchesCleanedContent(t *testing.T) {
	store := setupTestStore(t)
	gen := newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim))
	ctx := context.Background()
	in := entries("乾卦\x00元亨利贞", "坤卦\x07元亨")

	first, err := NewPipeline(store, gen, testConfig(core.Execute))
	require.NoError(t, err)
	_, err = first.Run(ctx, in)
	require.NoError(t, err)

	cfg := testConfig(core.Execute)
	cfg.Resume = true
	second, err := NewPipeline(store, gen, cfg)
	require.NoError(t, err)

	report, err := second.Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 2, report.AlreadyStored)
	assert.Zero(t, report.Embedding.Total)
	assert.Zero(t, report.Import.SuccessCount)
	require.NotNil(t, report.Verification)
	assert.True(t, report.Verification.OK, report.Verification.String())

	count, err := store.CountRecords(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPipeline_ControlCharactersDoNotDefeatDedupe(t *testing.T) {
	store := setupTestStore(t)
	p, err := NewPipeline(store, newTestGenerator(t, mock.NewMockEmbedderWithDimension(testDim)), testConfig(core.Execute))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), entries("乾卦元亨利贞", "乾卦\x00元亨利贞"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Unique)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Import.SuccessCount)
}

func TestPipeline_ErrorsReferToInputPositions(t *testing.T) {
	store := setupTestStore(t)
	m := mock.NewMockEmbedderWithDimension(testDim)
	m.WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "坤") {
			return nil, errors.New("service unavailable")
		}
		return mock.Vector(text, testDim), nil
	})
	gen := newTestGenerator(t, m)
	ctx := context.Background()

	first, err := NewPipeline(store, gen, testConfig(core.Execute))
	require.NoError(t, err)
	_, err = first.Run(ctx, entries("震卦"))
	require.NoError(t, err)

	cfg := testConfig(core.Execute)
	cfg.Resume = true
	second, err := NewPipeline(store, gen, cfg)
	require.NoError(t, err)

	// Pending after dedupe and resume is [乾卦, 坤卦], at input positions 0 and 3.
	report, err := second.Run(ctx, entries("乾卦", "乾卦", "震卦", "坤卦"))
	require.NoError(t, err)

	require.Len(t, report.Embedding.Errors, 1)
	assert.Equal(t, 3, report.Embedding.Errors[0].Index)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 3, report.Skipped[0].Index)

	var buf bytes.Buffer
	report.Summary(&buf)
	out := buf.String()
	assert.Contains(t, out, `embed entry #3 "坤卦"`)
	assert.NotContains(t, out, "skip entry")
}

func TestRunReport_SummaryDropsRepeatedSkips(t *testing.T) {
	r := &RunReport{Mode: core.Execute, Input: 6}
	r.Embedding.Errors = []embed.EntryError{{Index: 2, Title: "坤", Err: errors.New("timeout")}}
	r.Skipped = []importer.Skip{
		{Index: 2, Title: "坤", Err: core.ErrMissingEmbedding},
		{Index: 5, Title: "震", Err: core.ErrEmptyContent},
	}

	var buf bytes.Buffer
	r.Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "embed entry #2")
	assert.NotContains(t, out, "skip entry #2")
	assert.Contains(t, out, "skip entry #5")
	assert.Contains(t, out, "Skipped:          2")
}
