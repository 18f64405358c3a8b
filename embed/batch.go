package embed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/scriptorium/core"
)

const (
	// DefaultBatchSize is the number of entries embedded between pauses.
	DefaultBatchSize = 10
	// DefaultBatchPause is the pause between batches.
	DefaultBatchPause = time.Second
	// DefaultErrorSample bounds the errors kept in a report.
	DefaultErrorSample = 10
)

// BatchOptions configures EmbedEntries.
type BatchOptions struct {
	BatchSize   int
	Throttle    *Throttle
	Progress    *ProgressTracker
	ErrorSample int
	// Now stamps EmbeddingInfo.CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

// EntryError records why one entry was left unembedded.
type EntryError struct {
	Index int // position in the slice given to EmbedEntries
	Title string
	Err   error
}

// Report summarizes an EmbedEntries pass.
type Report struct {
	Total           int
	AlreadyEmbedded int
	Embedded        int
	Skipped         int
	Attempts        int
	Transient       int
	Validation      int
	Errors          []EntryError
}

// Rate returns the share of entries that carry an embedding afterwards.
func (r Report) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.AlreadyEmbedded+r.Embedded) / float64(r.Total)
}

// EntryText returns the text sent for an entry: the content, followed by the
// title when one is present.
func EntryText(e *core.Entry) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(e.Content); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(e.Title); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// EmbedEntries embeds every entry that lacks a valid vector, in input order,
// pausing between batches. The returned slice has the same length and order
// as entries; embedded entries are fresh copies and the inputs are never
// modified. Entries that fail keep their original value and are counted as
// skipped. Cancellation stops the pass between entries and is returned.
func EmbedEntries(ctx context.Context, gen *Generator, entries []*core.Entry, opts BatchOptions) ([]*core.Entry, Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.ErrorSample <= 0 {
		opts.ErrorSample = DefaultErrorSample
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := slog.Default().With("component", "embed-entries")
	dim := gen.Options().Dimension

	out := make([]*core.Entry, len(entries))
	copy(out, entries)
	report := Report{Total: len(entries)}

	var pending []int
	for i, e := range entries {
		if e.HasEmbedding(dim) {
			report.AlreadyEmbedded++
			continue
		}
		pending = append(pending, i)
	}

	opts.Progress.Start()
	opts.Progress.Increment(report.AlreadyEmbedded)
	defer opts.Progress.Finish()

	for start := 0; start < len(pending); start += opts.BatchSize {
		if err := opts.Throttle.Wait(ctx); err != nil {
			return out, report, err
		}

		end := min(start+opts.BatchSize, len(pending))
		for _, idx := range pending[start:end] {
			if err := ctx.Err(); err != nil {
				return out, report, err
			}
			entry := entries[idx]
			res := gen.Embed(ctx, EntryText(entry))
			report.Attempts += res.Attempts
			if !res.OK() {
				if ctx.Err() != nil {
					return out, report, ctx.Err()
				}
				report.Skipped++
				var f *Failure
				if errors.As(res.Err, &f) && f.Kind == FailureValidation {
					report.Validation++
				} else {
					report.Transient++
				}
				if len(report.Errors) < opts.ErrorSample {
					report.Errors = append(report.Errors, EntryError{Index: idx, Title: entry.Title, Err: res.Err})
				}
				logger.Warn("could not embed entry", "index", idx, "title", entry.Title, "err", res.Err)
			} else {
				out[idx] = entry.WithEmbedding(gen.Info(res.Vector, opts.Now().UTC()))
				report.Embedded++
			}
			opts.Progress.Increment(1)
		}
	}

	return out, report, nil
}
