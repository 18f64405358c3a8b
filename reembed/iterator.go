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

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/storage"
)

const (
	// DefaultPageSize is the default number of records to fetch per page
	DefaultPageSize = 100
)

// RecordIterator pages through stored records in ID order.
type RecordIterator struct {
	lister   storage.RecordLister
	pageSize int
}

// NewRecordIterator creates a new record iterator.
// pageSize: number of records to fetch per page (defaults when <= 0)
func NewRecordIterator(lister storage.RecordLister, pageSize int) *RecordIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &RecordIterator{
		lister:   lister,
		pageSize: pageSize,
	}
}

// ForEach calls fn for each page of records with ID > afterID.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked between pages.
func (it *RecordIterator) ForEach(ctx context.Context, afterID core.ID, fn func([]*core.Record) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := it.lister.ListRecords(ctx, storage.Query{AfterID: afterID, Limit: it.pageSize})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		afterID = page[len(page)-1].ID
		if len(page) < it.pageSize {
			return nil
		}
	}
}
