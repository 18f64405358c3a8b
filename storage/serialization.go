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

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/scriptorium/core"
)

// unmarshaler is satisfied by every mus-go serializer.
type unmarshaler[T any] interface {
	Unmarshal(bs []byte) (v T, n int, err error)
}

// reader walks a buffer, remembering the first decoding error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func read[T any](r *reader, ser unmarshaler[T]) (v T) {
	if r.err != nil {
		return v
	}
	v, n, err := ser.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) time() time.Time {
	micros := read(r, varint.Int64)
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

func (r *reader) vector() []float32 {
	length := read(r, varint.Int)
	if r.err != nil || length == 0 {
		return nil
	}
	if length < 0 || length*raw.Float32.Size(0) > len(r.bs)-r.n {
		r.err = ErrTruncatedData
		return nil
	}
	vec := make([]float32, length)
	for i := range vec {
		vec[i] = read(r, raw.Float32)
	}
	return vec
}

func (r *reader) done() error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return nil
}

func timeMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func vectorSize(vec []float32) int {
	return varint.Int.Size(len(vec)) + len(vec)*raw.Float32.Size(0)
}

func marshalVector(vec []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(vec), bs)
	for _, f := range vec {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	r := &reader{bs: data}
	id := read(r, varint.Uint64)
	return core.ID(id), r.done()
}

// MarshalRecord serializes a Record to bytes.
func MarshalRecord(record *core.Record) ([]byte, error) {
	meta, err := marshalMetadata(record.Metadata)
	if err != nil {
		return nil, err
	}
	created, updated := timeMicros(record.CreatedAt), timeMicros(record.UpdatedAt)

	size := varint.Uint64.Size(uint64(record.ID)) +
		ord.String.Size(record.Category) +
		ord.String.Size(record.Title) +
		ord.String.Size(record.Content) +
		vectorSize(record.Embedding) +
		varint.Int.Size(record.Dimension) +
		ord.String.Size(meta) +
		varint.Int64.Size(created) +
		varint.Int64.Size(updated)

	buf := make([]byte, size)
	n := varint.Uint64.Marshal(uint64(record.ID), buf)
	n += ord.String.Marshal(record.Category, buf[n:])
	n += ord.String.Marshal(record.Title, buf[n:])
	n += ord.String.Marshal(record.Content, buf[n:])
	n += marshalVector(record.Embedding, buf[n:])
	n += varint.Int.Marshal(record.Dimension, buf[n:])
	n += ord.String.Marshal(meta, buf[n:])
	n += varint.Int64.Marshal(created, buf[n:])
	varint.Int64.Marshal(updated, buf[n:])
	return buf, nil
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	r := &reader{bs: data}
	record := &core.Record{
		ID:        core.ID(read(r, varint.Uint64)),
		Category:  read(r, ord.String),
		Title:     read(r, ord.String),
		Content:   read(r, ord.String),
		Embedding: r.vector(),
		Dimension: read(r, varint.Int),
	}
	meta := read(r, ord.String)
	record.CreatedAt = r.time()
	record.UpdatedAt = r.time()
	if err := r.done(); err != nil {
		return nil, err
	}

	var err error
	if record.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	return record, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) []byte {
	updated := timeMicros(checkpoint.UpdatedAt)
	size := ord.String.Size(checkpoint.ProcessorType) +
		varint.Uint64.Size(uint64(checkpoint.LastID)) +
		varint.Int64.Size(updated)

	buf := make([]byte, size)
	n := ord.String.Marshal(checkpoint.ProcessorType, buf)
	n += varint.Uint64.Marshal(uint64(checkpoint.LastID), buf[n:])
	varint.Int64.Marshal(updated, buf[n:])
	return buf
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	r := &reader{bs: data}
	checkpoint := &core.Checkpoint{
		ProcessorType: read(r, ord.String),
		LastID:        core.ID(read(r, varint.Uint64)),
		UpdatedAt:     r.time(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

func marshalMetadata(meta core.Metadata) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	bs, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
	}
	return string(bs), nil
}

func unmarshalMetadata(s string) (core.Metadata, error) {
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var meta core.Metadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrSerializationFailed, err)
	}
	for k, v := range meta {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := num.Int64(); err == nil {
			meta[k] = i
			continue
		}
		f, err := num.Float64()
		if err != nil || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: metadata %q: bad number %s", ErrSerializationFailed, k, num)
		}
		meta[k] = f
	}
	return meta, nil
}
