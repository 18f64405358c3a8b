package embed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/poiesic/scriptorium/ai/mock"
	"github.com/poiesic/scriptorium/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func newTestGenerator(t *testing.T, m *mock.MockEmbedder) *Generator {
	t.Helper()
	gen, err := NewGenerator(m, Options{
		Model:       "test-model",
		Dimension:   testDim,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	})
	require.NoError(t, err)
	return gen
}

func TestGenerator_Success(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(testDim)
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), "乾：元，亨，利，貞。")
	require.True(t, res.OK())
	assert.Len(t, res.Vector, testDim)
	assert.Equal(t, 1, res.Attempts)
}

func TestGenerator_FailsTwiceThenSucceeds(t *testing.T) {
	calls := 0
	m := mock.NewMockEmbedderWithDimension(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("503 service unavailable")
		}
		return mock.Vector(text, testDim), nil
	})
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), "坤：元亨")
	require.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts, "exactly two retries")
	assert.Equal(t, 3, m.CallCount())
}

func TestGenerator_ExhaustedRetriesIsTransientFailure(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("timeout")
	})
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), "text")
	require.False(t, res.OK())
	assert.Nil(t, res.Vector)

	var f *Failure
	require.True(t, errors.As(res.Err, &f))
	assert.Equal(t, FailureTransient, f.Kind)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, 3, m.CallCount())
}

func TestGenerator_DimensionMismatchIsNotRetried(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(testDim - 1)
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), "text")
	require.False(t, res.OK())

	var f *Failure
	require.True(t, errors.As(res.Err, &f))
	assert.Equal(t, FailureValidation, f.Kind)
	assert.ErrorIs(t, res.Err, core.ErrDimensionMismatch)
	assert.Equal(t, 1, m.CallCount(), "validation failures must not be retried")
}

func TestGenerator_EmptyTextNeverCallsService(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(testDim)
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), " \x00\x01 ")
	require.False(t, res.OK())
	assert.ErrorIs(t, res.Err, core.ErrEmptyContent)
	assert.Equal(t, 0, m.CallCount())
}

func TestGenerator_TruncatesLongInput(t *testing.T) {
	var sent string
	m := mock.NewMockEmbedderWithDimension(testDim).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		sent = text
		return mock.Vector(text, testDim), nil
	})
	gen := newTestGenerator(t, m)

	res := gen.Embed(context.Background(), strings.Repeat("易", 9000))
	require.True(t, res.OK())
	assert.Equal(t, DefaultMaxInputChars+len(core.TruncationMarker), utf8.RuneCountInString(sent))
	assert.True(t, strings.HasSuffix(sent, core.TruncationMarker))
}

func TestGenerator_Normalize(t *testing.T) {
	m := mock.NewMockEmbedderWithDimension(2).WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{3, 4}, nil
	})
	gen, err := NewGenerator(m, Options{Dimension: 2, Normalize: true})
	require.NoError(t, err)

	res := gen.Embed(context.Background(), "x")
	require.True(t, res.OK())
	assert.InDelta(t, 0.6, res.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, res.Vector[1], 1e-6)
}

func TestNewGenerator_Validation(t *testing.T) {
	_, err := NewGenerator(nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrNilEmbedder)

	_, err = NewGenerator(mock.NewMockEmbedder(), Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewGenerator(mock.NewMockEmbedder(), Options{Dimension: 4, MaxAttempts: -1})
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	gen, err := NewGenerator(mock.NewMockEmbedder(), Options{Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, gen.Options().MaxAttempts)
	assert.Equal(t, DefaultMaxInputChars, gen.Options().MaxInputChars)
}

func TestNormalizeVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
	assert.Empty(t, NormalizeVector(nil))
	v := NormalizeVector([]float32{0, 5})
	assert.InDelta(t, 1.0, v[1], 1e-6)
}
