// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
	"github.com/poiesic/scriptorium/metrics"
	"github.com/poiesic/scriptorium/storage"
)

// Store is the part of the knowledge repository a run needs.
type Store interface {
	storage.RecordLister
	storage.RecordCounter
	storage.RecordWriter
}

// Pipeline imports staged passages into the store.
type Pipeline struct {
	store     Store
	generator *embed.Generator
	cfg       Config
	metrics   *metrics.Metrics
	progress  io.Writer
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMetrics records run counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithProgress writes embedding progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// NewPipeline creates a pipeline. The generator's dimension must match cfg.Dimension.
func NewPipeline(store Store, generator *embed.Generator, cfg Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dim := generator.Options().Dimension; dim != cfg.Dimension {
		return nil, fmt.Errorf("%w: generator dimension %d, store dimension %d", ErrInvalidConfig, dim, cfg.Dimension)
	}

	p := &Pipeline{
		store:     store,
		generator: generator,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// Run takes entries through every stage. On cancellation the partial report
// is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, entries []*core.Entry) (*RunReport, error) {
	start := time.Now()
	report := &RunReport{Mode: p.cfg.Mode, Input: len(entries)}
	defer func() { report.Duration = time.Since(start) }()

	// Dedupe within the input
	deduped := dedupe.Dedupe(entries, p.cfg.PrefixLen)
	report.Unique = len(deduped.Unique)
	report.Duplicates = len(deduped.Duplicates)
	p.metrics.ObserveDuplicates(report.Duplicates)
	p.logger.Info("deduplicated input", "input", report.Input, "unique", report.Unique, "duplicates", report.Duplicates)

	existing, err := p.store.CountRecords(ctx, storage.Filter{})
	if err != nil {
		return report, fmt.Errorf("count existing records: %w", err)
	}
	report.ExistingBefore = existing

	// Diff against what is already stored. origin maps each pending entry
	// back to its position in the input.
	pending, origin := deduped.Unique, deduped.UniqueIndex
	if p.cfg.Resume {
		idx, err := dedupe.Snapshot(ctx, p.store, p.cfg.PrefixLen, p.cfg.SnapshotPageSize)
		if err != nil {
			return report, err
		}
		positions := dedupe.MissingIndices(idx, deduped.Unique)
		pending, origin = pick(deduped.Unique, positions), pick(deduped.UniqueIndex, positions)
		report.AlreadyStored = len(deduped.Unique) - len(pending)
		p.logger.Info("resuming", "stored", report.AlreadyStored, "remaining", len(pending))
	}

	embedded, origin, err := p.embed(ctx, pending, origin, report)
	if err != nil {
		return report, err
	}

	records, skips := importer.PrepareAll(embedded, p.cfg.Dimension)
	for i := range skips {
		skips[i].Index = origin[skips[i].Index]
	}
	report.Skipped = skips
	p.metrics.ObserveSkipped(len(skips))

	imp, err := importer.New(p.store, importer.Options{
		BatchSize: p.cfg.ImportBatchSize,
		Mode:      p.cfg.Mode,
	})
	if err != nil {
		return report, err
	}
	report.Import, err = imp.Import(ctx, records)
	p.metrics.ObserveImport(report.Import)
	if err != nil {
		return report, err
	}

	report.ExpectedTotal = p.expectedTotal(report, len(records))
	if p.cfg.Mode != core.Execute {
		return report, nil
	}
	v, err := importer.VerifyStore(ctx, p.store, report.ExpectedTotal)
	if err != nil {
		return report, err
	}
	report.Verification = &v
	if !v.OK {
		p.logger.Warn("record count does not match", "verification", v.String())
	}
	return report, nil
}

// embed fills in missing vectors and returns the entries ready for
// preparation with their input positions. A dry run makes no embedding calls;
// entries still lacking a vector are counted as pending and left out.
// Embedding error indices are rewritten to input positions.
func (p *Pipeline) embed(ctx context.Context, entries []*core.Entry, origin []int, report *RunReport) ([]*core.Entry, []int, error) {
	if p.cfg.Mode != core.Execute {
		ready := make([]*core.Entry, 0, len(entries))
		readyOrigin := make([]int, 0, len(entries))
		for i, e := range entries {
			if e.HasEmbedding(p.cfg.Dimension) {
				ready = append(ready, e)
				readyOrigin = append(readyOrigin, origin[i])
				continue
			}
			report.PendingEmbedding++
		}
		return ready, readyOrigin, nil
	}

	var progress *embed.ProgressTracker
	if p.progress != nil {
		progress = embed.NewProgressTracker(p.progress, len(entries), p.cfg.EmbedBatchSize).WithLabel("Embedding")
	}
	out, embedReport, err := embed.EmbedEntries(ctx, p.generator, entries, embed.BatchOptions{
		BatchSize: p.cfg.EmbedBatchSize,
		Throttle:  embed.NewThrottle(p.cfg.EmbedPause),
		Progress:  progress,
	})
	for i := range embedReport.Errors {
		embedReport.Errors[i].Index = origin[embedReport.Errors[i].Index]
	}
	report.Embedding = embedReport
	p.metrics.ObserveEmbedding(embedReport)
	return out, origin, err
}

func pick[T any](items []T, positions []int) []T {
	out := make([]T, len(positions))
	for i, pos := range positions {
		out[i] = items[pos]
	}
	return out
}

// expectedTotal picks the row count the store should hold after the run.
func (p *Pipeline) expectedTotal(report *RunReport, prepared int) int {
	switch {
	case p.cfg.ExpectedTotal > 0:
		return p.cfg.ExpectedTotal
	case p.cfg.Resume:
		return report.Unique
	default:
		return report.ExistingBefore + prepared
	}
}
