package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/scriptorium/ai"
	"github.com/poiesic/scriptorium/core"
)

const (
	// DefaultMaxAttempts is the total number of calls made for one text.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second
	// DefaultMaxInputChars is the longest input sent to the service, in code points.
	DefaultMaxInputChars = 8000
)

// Options configures a Generator.
type Options struct {
	Model         string
	Dimension     int
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxInputChars int
	// Normalize scales returned vectors to unit length.
	Normalize bool
}

// DefaultOptions returns options for the default model and dimension.
func DefaultOptions() Options {
	return Options{
		Model:         "text-embedding-v4",
		Dimension:     core.DefaultDimension,
		MaxAttempts:   DefaultMaxAttempts,
		BaseDelay:     DefaultBaseDelay,
		MaxInputChars: DefaultMaxInputChars,
	}
}

// Result is the outcome of one Embed call. Exactly one of Vector and Err is set.
type Result struct {
	Vector   []float32
	Attempts int
	// Err is a *Failure when the call did not produce a vector.
	Err error
}

// OK reports whether a vector was produced.
func (r Result) OK() bool {
	return r.Err == nil
}

// Generator turns text into validated vectors, retrying transient failures.
// It is safe for concurrent use if the embedder is.
type Generator struct {
	embedder ai.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewGenerator creates a Generator. Zero-valued retry and length options
// take their defaults; Dimension must be set.
func NewGenerator(embedder ai.Embedder, opts Options) (*Generator, error) {
	if embedder == nil {
		return nil, ErrNilEmbedder
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidOptions, opts.Dimension)
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, ErrInvalidMaxAttempts)
	}
	if opts.BaseDelay < 0 {
		return nil, fmt.Errorf("%w: negative base delay", ErrInvalidOptions)
	}
	if opts.MaxInputChars == 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}

	return &Generator{
		embedder: embedder,
		opts:     opts,
		logger:   slog.Default().With("component", "embedding-generator"),
	}, nil
}

// Options returns the effective options.
func (g *Generator) Options() Options {
	return g.opts
}

// PrepareInput cleans text and cuts it to the service's maximum length.
func (g *Generator) PrepareInput(text string) string {
	cleaned := strings.TrimSpace(core.CleanText(text))
	return core.TruncateText(cleaned, g.opts.MaxInputChars)
}

// Embed produces a vector for text. Service errors are retried with
// exponential backoff; a vector of the wrong dimension fails immediately.
func (g *Generator) Embed(ctx context.Context, text string) Result {
	input := g.PrepareInput(text)
	if input == "" {
		return Result{Err: &Failure{Kind: FailureValidation, Err: core.ErrEmptyContent}}
	}

	var vector []float32
	attempts, err := RetryWithBackoff(ctx, func() error {
		v, err := g.embedder.EmbedText(ctx, input)
		if err != nil {
			return err
		}
		if err := core.ValidateEmbedding(v, g.opts.Dimension); err != nil {
			return Permanent(err)
		}
		vector = v
		return nil
	}, g.opts.MaxAttempts, g.opts.BaseDelay)

	if err != nil {
		kind := FailureTransient
		if errors.Is(err, core.ErrDimensionMismatch) || errors.Is(err, core.ErrMissingEmbedding) || errors.Is(err, core.ErrInvalidRecord) {
			kind = FailureValidation
		}
		g.logger.Debug("embedding failed", "kind", kind, "attempts", attempts, "err", err)
		return Result{Attempts: attempts, Err: &Failure{Kind: kind, Attempts: attempts, Err: err}}
	}

	if g.opts.Normalize {
		vector = NormalizeVector(vector)
	}
	return Result{Vector: vector, Attempts: attempts}
}

// Info wraps a vector produced by this generator with its provenance.
func (g *Generator) Info(vector []float32, now time.Time) *core.EmbeddingInfo {
	return &core.EmbeddingInfo{
		Vector:    vector,
		Dimension: len(vector),
		Model:     g.opts.Model,
		CreatedAt: now,
	}
}
