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

package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/storage"
)

const (
	// DefaultDeleteBatchSize is the number of ids removed per batch.
	DefaultDeleteBatchSize = 100
	// DefaultDeletePause is the pause between delete batches.
	DefaultDeletePause = 500 * time.Millisecond
)

// PurgeStore is the part of the store the purger needs.
type PurgeStore interface {
	storage.RecordLister
	DeleteRecords(ctx context.Context, ids ...core.ID) error
}

// PurgeOptions configures a Purger.
type PurgeOptions struct {
	PrefixLen   int
	BatchSize   int
	PageSize    int
	Pause       time.Duration
	Mode        core.Mode
	ErrorSample int
}

// PurgeReport summarizes a purge.
type PurgeReport struct {
	Mode       core.Mode
	Scanned    int
	Unique     int
	Duplicates int
	Deleted    int
	Failed     int
	Errors     []string
}

// Purger removes stored records whose content repeats an earlier record.
// The earliest record (lowest ID) of each group is kept.
type Purger struct {
	store  PurgeStore
	opts   PurgeOptions
	logger *slog.Logger
}

// NewPurger creates a Purger, filling zero options with defaults.
func NewPurger(store PurgeStore, opts PurgeOptions) *Purger {
	if opts.PrefixLen == 0 {
		opts.PrefixLen = core.DefaultPrefixLen
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultDeleteBatchSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ErrorSample <= 0 {
		opts.ErrorSample = 10
	}
	return &Purger{
		store:  store,
		opts:   opts,
		logger: slog.Default().With("component", "purger"),
	}
}

// Scan reads all stored records in ID order and finds duplicates without
// deleting anything.
func (p *Purger) Scan(ctx context.Context) (Result[*core.Record], int, error) {
	var all []*core.Record
	var after core.ID
	for {
		page, err := p.store.ListRecords(ctx, storage.Query{AfterID: after, Limit: p.opts.PageSize})
		if err != nil {
			return Result[*core.Record]{}, 0, fmt.Errorf("list records: %w", err)
		}
		for _, r := range page {
			// Drop vectors; only ids and content are needed here
			all = append(all, &core.Record{ID: r.ID, Content: r.Content})
			after = r.ID
		}
		if len(page) < p.opts.PageSize {
			break
		}
	}
	return Dedupe(all, p.opts.PrefixLen), len(all), nil
}

// Run scans the store and, in Execute mode, deletes every duplicate in
// batches. Failures are counted and sampled; they never stop the purge.
func (p *Purger) Run(ctx context.Context) (*PurgeReport, error) {
	res, scanned, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}

	report := &PurgeReport{
		Mode:       p.opts.Mode,
		Scanned:    scanned,
		Unique:     len(res.Unique),
		Duplicates: len(res.Duplicates),
	}
	p.logger.Info("duplicate scan complete", "scanned", scanned, "unique", report.Unique, "duplicates", report.Duplicates, "mode", p.opts.Mode)

	if p.opts.Mode != core.Execute || len(res.Duplicates) == 0 {
		return report, nil
	}

	ids := make([]core.ID, len(res.Duplicates))
	for i, d := range res.Duplicates {
		ids[i] = d.Item.ID
	}

	throttle := embed.NewThrottle(p.opts.Pause)
	for start := 0; start < len(ids); start += p.opts.BatchSize {
		if err := throttle.Wait(ctx); err != nil {
			return report, err
		}
		end := min(start+p.opts.BatchSize, len(ids))
		p.deleteBatch(ctx, ids[start:end], report)
	}

	p.logger.Info("purge complete", "deleted", report.Deleted, "failed", report.Failed)
	return report, nil
}

// deleteBatch removes a batch in one call, falling back to one call per id
// so a single bad id doesn't fail its neighbours.
func (p *Purger) deleteBatch(ctx context.Context, ids []core.ID, report *PurgeReport) {
	if err := p.store.DeleteRecords(ctx, ids...); err == nil {
		report.Deleted += len(ids)
		return
	}
	for _, id := range ids {
		if err := p.store.DeleteRecords(ctx, id); err != nil {
			report.Failed++
			if len(report.Errors) < p.opts.ErrorSample {
				report.Errors = append(report.Errors, fmt.Sprintf("delete %d: %v", id, err))
			}
			p.logger.Warn("delete failed", "id", id, "err", err)
			continue
		}
		report.Deleted++
	}
}
