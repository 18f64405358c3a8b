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

package core

import (
	"fmt"
	"math"
)

// ValidateEmbedding checks that vec is present, has exactly dim elements and
// contains only finite values.
func ValidateEmbedding(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrMissingEmbedding
	}
	if len(vec) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(vec))
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidRecord, i)
		}
	}
	return nil
}

// ValidateRecord validates a Record before it is handed to the store.
//
// Validation rules:
//   - Content must not be empty
//   - Embedding must be present with exactly dim elements
//   - Dimension must equal len(Embedding)
//
// NOT validated:
//   - ID (0 until the store assigns one)
//   - Category, Title, Metadata (optional)
func ValidateRecord(record *Record, dim int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if record.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyContent)
	}
	if err := ValidateEmbedding(record.Embedding, dim); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if record.Dimension != len(record.Embedding) {
		return fmt.Errorf("%w: %w: dimension field %d, vector length %d",
			ErrInvalidRecord, ErrDimensionMismatch, record.Dimension, len(record.Embedding))
	}
	return nil
}
