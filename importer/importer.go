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

package importer

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
)

const (
	// DefaultBatchSize is the number of records written per chunk.
	DefaultBatchSize = 100
	// DefaultErrorSample bounds the errors returned by Report.SampleErrors.
	DefaultErrorSample = 10
)

// ChunkStatus is the outcome of one chunk.
type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota
	ChunkCommitted
	ChunkPartial
	ChunkFailed
	// ChunkPlanned is reported in dry-run mode instead of writing.
	ChunkPlanned
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkCommitted:
		return "committed"
	case ChunkPartial:
		return "partial"
	case ChunkFailed:
		return "failed"
	case ChunkPlanned:
		return "planned"
	default:
		return "unknown"
	}
}

// ChunkResult describes one write request.
type ChunkResult struct {
	Number    int // 1-based
	Start     int // offset of the first record in the input
	Requested int
	Accepted  int
	Status    ChunkStatus
	Err       error
}

// Options configures an Importer.
type Options struct {
	BatchSize int
	// Mode must be core.Execute for rows to be written. The zero value is
	// core.DryRun: chunks are planned and reported, the store is never called.
	Mode        core.Mode
	ErrorSample int
	// RunID tags every imported row. A random UUID is used when empty.
	RunID string
}

// Report summarizes an import run.
type Report struct {
	RunID        string
	Mode         core.Mode
	Chunks       int
	SuccessCount int
	ErrorCount   int
	// Errors holds two lines per failed or partial chunk: what went wrong,
	// and which records were not written.
	Errors       []string
	ChunkResults []ChunkResult

	errorSample int
}

// SampleErrors returns at most the configured number of error lines.
func (r *Report) SampleErrors() []string {
	if len(r.Errors) <= r.errorSample {
		return r.Errors
	}
	return r.Errors[:r.errorSample]
}

// Importer writes prepared records to the store in independent chunks.
type Importer struct {
	store  storage.RecordWriter
	opts   Options
	logger *slog.Logger
}

// New creates an Importer. A zero BatchSize means DefaultBatchSize. Options
// without an explicit Mode give a dry-run importer.
func New(store storage.RecordWriter, opts Options) (*Importer, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, opts.BatchSize)
	}
	if opts.ErrorSample <= 0 {
		opts.ErrorSample = DefaultErrorSample
	}
	logger := slog.Default().With("component", "importer")
	if opts.Mode != core.Execute {
		logger.Info("importer is in dry-run mode, nothing will be written", "mode", opts.Mode)
	}
	return &Importer{
		store:  store,
		opts:   opts,
		logger: logger,
	}, nil
}

// Import writes records in contiguous chunks, one store call per chunk.
// A chunk is credited only with the rows the store acknowledged; a failed
// or short chunk is reported and the run moves on to the next chunk.
// Cancellation is honored between chunks and returned with the partial report.
func (im *Importer) Import(ctx context.Context, records []*core.Record) (*Report, error) {
	runID := im.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	report := &Report{
		RunID:       runID,
		Mode:        im.opts.Mode,
		errorSample: im.opts.ErrorSample,
	}
	logger := im.logger.With("run_id", runID)

	for start := 0; start < len(records); start += im.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			logger.Warn("import canceled", "committed_chunks", report.Chunks)
			return report, err
		}

		end := min(start+im.opts.BatchSize, len(records))
		chunk := ChunkResult{
			Number:    len(report.ChunkResults) + 1,
			Start:     start,
			Requested: end - start,
		}

		if im.opts.Mode != core.Execute {
			chunk.Status = ChunkPlanned
		} else {
			im.writeChunk(ctx, tag(records[start:end], runID), &chunk)
		}

		report.Chunks++
		report.SuccessCount += chunk.Accepted
		if chunk.Status == ChunkFailed || chunk.Status == ChunkPartial {
			report.ErrorCount += chunk.Requested - chunk.Accepted
			report.Errors = append(report.Errors,
				fmt.Sprintf("chunk %d: %v", chunk.Number, chunk.Err),
				fmt.Sprintf("chunk %d: records %d-%d not imported (%d rows)",
					chunk.Number, start+chunk.Accepted+1, end, chunk.Requested-chunk.Accepted),
			)
			if len(report.Errors) <= 2*im.opts.ErrorSample {
				logger.Warn("chunk failed", "chunk", chunk.Number, "accepted", chunk.Accepted, "requested", chunk.Requested, "err", chunk.Err)
			}
		} else {
			logger.Debug("chunk done", "chunk", chunk.Number, "status", chunk.Status, "rows", chunk.Accepted)
		}
		report.ChunkResults = append(report.ChunkResults, chunk)
	}

	logger.Info("import finished", "mode", im.opts.Mode, "chunks", report.Chunks, "success", report.SuccessCount, "errors", report.ErrorCount)
	return report, nil
}

func (im *Importer) writeChunk(ctx context.Context, batch []*core.Record, chunk *ChunkResult) {
	accepted, err := im.store.AddRecords(ctx, batch...)
	chunk.Accepted = min(len(accepted), chunk.Requested)
	switch {
	case err != nil:
		chunk.Status = ChunkFailed
		chunk.Err = err
		if chunk.Accepted > 0 {
			chunk.Status = ChunkPartial
		}
	case chunk.Accepted < chunk.Requested:
		chunk.Status = ChunkPartial
		if chunk.Accepted == 0 {
			chunk.Status = ChunkFailed
		}
		chunk.Err = fmt.Errorf("%w: %d of %d", ErrShortAcknowledgement, chunk.Accepted, chunk.Requested)
	default:
		chunk.Status = ChunkCommitted
	}
}

// tag returns copies of records carrying the run id in their metadata.
func tag(records []*core.Record, runID string) []*core.Record {
	out := make([]*core.Record, len(records))
	for i, r := range records {
		cp := *r
		cp.Metadata = maps.Clone(r.Metadata)
		if cp.Metadata == nil {
			cp.Metadata = core.Metadata{}
		}
		cp.Metadata[MetaImportRunID] = runID
		out[i] = &cp
	}
	return out
}
