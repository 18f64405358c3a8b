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

// Package scriptorium wires the knowledge store, the embedding client and
// the processing passes together behind one handle.
package scriptorium

import (
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/scriptorium/ai"
	"github.com/poiesic/scriptorium/ai/openai"
	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/metrics"
	"github.com/poiesic/scriptorium/pipeline"
	"github.com/poiesic/scriptorium/reembed"
	"github.com/poiesic/scriptorium/search"
	"github.com/poiesic/scriptorium/storage"
	"github.com/poiesic/scriptorium/storage/badger"
)

type Database struct {
	backend        *badger.Backend
	knowledgeRepo  storage.KnowledgeRepository
	checkpointRepo storage.CheckpointRepository
	provider       ai.AIProvider
	generator      *embed.Generator
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// Option configures a Database.
type Option func(*options)

type options struct {
	aiConfig   *ai.Config
	provider   ai.AIProvider
	genOptions *embed.Options
	metrics    *metrics.Metrics
	inMemory   bool
}

// WithAIConfig sets the embedding client configuration.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing provider instead of building an OpenAI-compatible one.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithGeneratorOptions overrides the embedding generator settings. Its
// Dimension also fixes the dimension enforced by the store.
func WithGeneratorOptions(opts embed.Options) Option {
	return func(o *options) {
		o.genOptions = &opts
	}
}

// WithMetrics records counters from every pass into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithInMemory keeps the store in memory; the path is ignored.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// Open opens (or creates) the store at path and connects the embedding client.
func Open(path string, opts ...Option) (*Database, error) {
	// Apply options
	o := &options{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(o)
	}

	genOpts := embed.DefaultOptions()
	genOpts.Model = o.aiConfig.EmbeddingModel
	genOpts.Dimension = o.aiConfig.Dimension
	if o.genOptions != nil {
		genOpts = *o.genOptions
	}

	// Build the provider first so a bad configuration never opens the store
	provider := o.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(o.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	generator, err := embed.NewGenerator(provider.Embedder(), genOpts)
	if err != nil {
		provider.Close()
		return nil, err
	}

	// Open backend
	backend, err := badger.OpenBackend(path, o.inMemory)
	if err != nil {
		provider.Close()
		return nil, err
	}

	knowledgeRepo, err := badger.NewKnowledgeRepository(backend, genOpts.Dimension)
	if err != nil {
		backend.Close()
		provider.Close()
		return nil, err
	}

	return &Database{
		backend:        backend,
		knowledgeRepo:  knowledgeRepo,
		checkpointRepo: badger.NewCheckpointRepository(backend),
		provider:       provider,
		generator:      generator,
		metrics:        o.metrics,
		logger:         slog.Default(),
	}, nil
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	var errs []error
	if err := db.knowledgeRepo.Close(); err != nil {
		db.logger.Error("error closing knowledge repository", "err", err)
		errs = append(errs, err)
	}
	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) KnowledgeRepository() storage.KnowledgeRepository {
	return db.knowledgeRepo
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpointRepo
}

func (db *Database) Generator() *embed.Generator {
	return db.generator
}

func (db *Database) Metrics() *metrics.Metrics {
	return db.metrics
}

// NewPipeline creates an import pipeline over this store.
func (db *Database) NewPipeline(cfg pipeline.Config, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	opts = append([]pipeline.Option{pipeline.WithMetrics(db.metrics)}, opts...)
	return pipeline.NewPipeline(db.knowledgeRepo, db.generator, cfg, opts...)
}

// NewReembedder creates a regeneration pass that checkpoints into this store.
func (db *Database) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.knowledgeRepo, db.generator, db.checkpointRepo, cfg, progress)
}

func (db *Database) NewPurger(opts dedupe.PurgeOptions) *dedupe.Purger {
	return dedupe.NewPurger(db.knowledgeRepo, opts)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.knowledgeRepo, db.generator, opts...)
}
