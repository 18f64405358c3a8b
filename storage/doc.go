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

// Package storage provides the storage abstraction layer for scriptorium.
//
// This package defines repository interfaces that decouple the knowledge
// store from the import pipeline. The pipeline only sees the narrow
// interfaces it needs (RecordLister, RecordCounter, RecordWriter), so tests
// can substitute a scripted store that acknowledges partial batches or fails
// on demand.
//
// # Architecture
//
//   - KnowledgeRepository: the knowledge table (records plus vectors)
//   - CheckpointRepository: progress markers for resumable passes
//   - RecordLister, RecordCounter, RecordWriter, VectorSearcher: the narrow
//     views consumed by dedupe, importer, and search
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	repo, err := badger.NewKnowledgeRepository(backend, core.DefaultDimension)
//
// # Encoding
//
// Records are encoded with mus-go primitives. Metadata is carried as a JSON
// string; integral numbers decode as int64 and other numbers as float64.
package storage
