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

// Package search finds stored passages similar to a free-text query.
//
// The query is embedded and matched by cosine similarity. When nothing
// clears the similarity threshold, the Searcher falls back to a plain
// substring match over the stored content, scored at KeywordScore.
//
// SearchMany runs several queries concurrently on a bounded worker pool.
package search
