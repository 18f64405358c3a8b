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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/storage"
)

// ProcessorType names the checkpoint written by the regeneration pass.
const ProcessorType = "reembed"

// DefaultPause is the wait between two embedding calls.
const DefaultPause = 200 * time.Millisecond

// Store is the part of the knowledge repository the pass needs.
type Store interface {
	storage.RecordLister
	storage.RecordCounter
	UpdateEmbedding(ctx context.Context, id core.ID, vector []float32) error
}

// Config holds configuration for the regeneration pass.
type Config struct {
	// PageSize is the number of records fetched per page
	PageSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// Pause is the minimum time between two embedding calls
	Pause time.Duration

	// Mode selects whether vectors are written or only counted
	Mode core.Mode

	// ErrorSample bounds the error messages kept in the report
	ErrorSample int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       DefaultPageSize,
		ReportInterval: 100,
		Pause:          DefaultPause,
		Mode:           core.DryRun,
		ErrorSample:    10,
	}
}

// Coverage is the share of stored records that carry a vector.
type Coverage struct {
	Embedded int
	Total    int
}

// Rate returns the embedded share as a percentage.
func (c Coverage) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Embedded) / float64(c.Total) * 100
}

// Report summarizes a regeneration pass.
type Report struct {
	Mode         core.Mode
	ResumedAfter core.ID
	Total        int
	Visited      int
	Updated      int
	Planned      int
	Failed       int
	Skipped      int
	Coverage     Coverage
	Errors       []string
	Elapsed      time.Duration
}

// Reembedder regenerates the vector of every stored record.
type Reembedder struct {
	store       Store
	generator   *embed.Generator
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	iterator    *RecordIterator
	logger      *slog.Logger
}

// NewReembedder creates a new reembedder.
// checkpoints may be nil, in which case every run starts from the beginning.
// progress: where to write progress output (typically os.Stderr, may be nil)
func NewReembedder(store Store, generator *embed.Generator, checkpoints storage.CheckpointRepository, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.ErrorSample <= 0 {
		config.ErrorSample = 10
	}

	return &Reembedder{
		store:       store,
		generator:   generator,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		iterator:    NewRecordIterator(store, config.PageSize),
		logger:      slog.Default().With("component", "reembedder"),
	}, nil
}

// Run regenerates embeddings for every record after the saved checkpoint.
// In dry-run mode nothing is embedded or written; records that would be
// regenerated are counted as planned. A finished pass clears the checkpoint.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{Mode: r.config.Mode}

	after, err := r.loadCheckpoint(ctx)
	if err != nil {
		return report, err
	}
	report.ResumedAfter = after

	total, err := r.store.CountRecords(ctx, storage.Filter{})
	if err != nil {
		return report, fmt.Errorf("count records: %w", err)
	}
	report.Total = total
	r.logger.Info("starting regeneration", "mode", r.config.Mode, "records", total, "after_id", after)

	var tracker *embed.ProgressTracker
	if r.progress != nil {
		tracker = embed.NewProgressTracker(r.progress, total, r.config.ReportInterval).WithLabel("Reembedding")
	}
	tracker.Start()
	throttle := embed.NewThrottle(r.config.Pause)

	err = r.iterator.ForEach(ctx, after, func(page []*core.Record) error {
		for _, record := range page {
			if err := r.process(ctx, throttle, record, report); err != nil {
				return err
			}
			tracker.Increment(1)
		}
		return r.saveCheckpoint(ctx, page[len(page)-1].ID)
	})
	tracker.Finish()
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}

	if r.config.Mode == core.Execute && r.checkpoints != nil {
		if err := r.checkpoints.ClearCheckpoint(ctx, ProcessorType); err != nil {
			return report, fmt.Errorf("clear checkpoint: %w", err)
		}
	}

	report.Coverage, err = r.coverage(ctx)
	if err != nil {
		return report, err
	}

	r.logger.Info("regeneration finished",
		"updated", report.Updated, "failed", report.Failed, "skipped", report.Skipped,
		"coverage", fmt.Sprintf("%.2f%%", report.Coverage.Rate()), "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// process handles one record. Only cancellation is returned as an error.
func (r *Reembedder) process(ctx context.Context, throttle *embed.Throttle, record *core.Record, report *Report) error {
	report.Visited++
	if record.Content == "" {
		report.Skipped++
		return nil
	}
	if r.config.Mode != core.Execute {
		report.Planned++
		return nil
	}

	if err := throttle.Wait(ctx); err != nil {
		return err
	}
	res := r.generator.Embed(ctx, record.Content)
	if !res.OK() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.fail(report, record.ID, res.Err)
		return nil
	}

	if err := r.store.UpdateEmbedding(ctx, record.ID, res.Vector); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.fail(report, record.ID, err)
		return nil
	}
	report.Updated++
	return nil
}

func (r *Reembedder) fail(report *Report, id core.ID, err error) {
	report.Failed++
	if len(report.Errors) < r.config.ErrorSample {
		report.Errors = append(report.Errors, fmt.Sprintf("record %d: %v", id, err))
	}
	r.logger.Warn("could not regenerate embedding", "id", id, "err", err)
}

func (r *Reembedder) loadCheckpoint(ctx context.Context) (core.ID, error) {
	if r.checkpoints == nil {
		return 0, nil
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, ProcessorType)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return 0, nil
	}
	return cp.LastID, nil
}

func (r *Reembedder) saveCheckpoint(ctx context.Context, last core.ID) error {
	if r.config.Mode != core.Execute || r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: ProcessorType,
		LastID:        last,
		UpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *Reembedder) coverage(ctx context.Context) (Coverage, error) {
	total, err := r.store.CountRecords(ctx, storage.Filter{})
	if err != nil {
		return Coverage{}, fmt.Errorf("count records: %w", err)
	}
	embedded, err := r.store.CountRecords(ctx, storage.Filter{EmbeddedOnly: true})
	if err != nil {
		return Coverage{}, fmt.Errorf("count embedded records: %w", err)
	}
	return Coverage{Embedded: embedded, Total: total}, nil
}
