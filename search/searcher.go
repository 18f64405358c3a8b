package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/storage"
)

const (
	// DefaultLimit is the number of results returned when limit is not positive.
	DefaultLimit = 5
	// DefaultThreshold is the minimum cosine similarity for a semantic hit.
	DefaultThreshold float32 = 0.3
	// KeywordScore is the score given to substring matches found by the fallback.
	KeywordScore float32 = 0.8

	keywordPageSize = 500
)

// Store is the part of the knowledge repository a search reads from.
type Store interface {
	storage.VectorSearcher
	storage.RecordLister
}

// Searcher runs similarity queries against the store.
type Searcher struct {
	store           Store
	generator       *embed.Generator
	pool            *ants.Pool
	keywordFallback bool
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithPoolSize sets the number of queries SearchMany runs at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Searcher) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithKeywordFallback enables or disables the substring fallback.
// Enabled by default.
func WithKeywordFallback(enabled bool) Option {
	return func(s *Searcher) error {
		s.keywordFallback = enabled
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store Store, generator *embed.Generator, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		store:           store,
		generator:       generator,
		pool:            pool,
		keywordFallback: true,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}

	return s, nil
}

// Release releases the worker pool. The searcher should not be used afterwards.
func (s *Searcher) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Search returns up to limit records similar to query, best first.
func (s *Searcher) Search(ctx context.Context, query string, limit int, threshold float32) ([]*core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, limit, threshold, nil)
}

// SearchWithMonitor is Search with stage callbacks.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, limit int, threshold float32, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	monitor.Start(query)

	res := s.generator.Embed(ctx, query)
	if !res.OK() {
		s.logger.Error("error generating embedding for query", "query", query, "err", res.Err)
		return nil, res.Err
	}

	results, err := s.store.FindSimilar(ctx, res.Vector, threshold, limit)
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(results)

	if len(results) == 0 && s.keywordFallback {
		results, err = s.keywordSearch(ctx, normalized, limit)
		if err != nil {
			s.logger.Error("error in keyword fallback", "err", err)
			return nil, err
		}
		monitor.AfterKeywordFallback(results)
	}

	monitor.Finish(results)
	return results, nil
}

// keywordSearch scans the store in ID order for records containing query.
func (s *Searcher) keywordSearch(ctx context.Context, query string, limit int) ([]*core.SearchResult, error) {
	var results []*core.SearchResult
	var after core.ID
	for len(results) < limit {
		page, err := s.store.ListRecords(ctx, storage.Query{AfterID: after, Limit: keywordPageSize})
		if err != nil {
			return nil, err
		}
		for _, record := range page {
			if containsQuery(record.Content, query) {
				results = append(results, &core.SearchResult{Record: record, Score: KeywordScore})
				if len(results) == limit {
					break
				}
			}
		}
		if len(page) < keywordPageSize {
			break
		}
		after = page[len(page)-1].ID
	}
	return results, nil
}

// SearchMany runs every query on the worker pool. The returned slice is in
// query order; a failed query leaves a nil entry and its error is joined
// into the returned error.
func (s *Searcher) SearchMany(ctx context.Context, queries []string, limit int, threshold float32) ([][]*core.SearchResult, error) {
	results := make([][]*core.SearchResult, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			r, err := s.Search(ctx, q, limit, threshold)
			if err != nil {
				errs[i] = fmt.Errorf("query %d %q: %w", i, q, err)
				return
			}
			results[i] = r
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit query %d: %w", i, err)
		}
	}
	wg.Wait()

	return results, errors.Join(slices.DeleteFunc(errs, func(err error) bool { return err == nil })...)
}
