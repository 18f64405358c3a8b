// Package staging reads and writes the intermediate JSON file that carries
// passages between the extraction, dedupe, embed and import steps.
package staging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/scriptorium/core"
)

// SchemaVersion is the only staging layout this package understands.
const SchemaVersion = 1

// Metadata keys maintained by Stamp.
const (
	KeyEmbeddingModel     = "embedding_model"
	KeyEmbeddingDimension = "embedding_dimension"
	KeyTotalProcessed     = "total_processed"
	KeyEmbeddedCount      = "embedded_count"
	KeyEmbeddingRate      = "embedding_rate"
	KeyUpdatedAt          = "updated_at"
)

var (
	// ErrUnsupportedSchema is returned for files without schema_version 1.
	ErrUnsupportedSchema = errors.New("unsupported staging schema")
	// ErrMalformed is returned when the file is not valid JSON of the expected shape.
	ErrMalformed = errors.New("malformed staging file")
)

// Document is a staging file in memory. Statistics are carried through
// untouched; metadata keys other than the stamped ones are preserved.
type Document struct {
	Metadata   map[string]any
	Statistics json.RawMessage
	Entries    []*core.Entry
}

type documentJSON struct {
	SchemaVersion *int            `json:"schema_version"`
	Metadata      map[string]any  `json:"metadata"`
	Statistics    json.RawMessage `json:"statistics,omitempty"`
	KnowledgeBase []entryJSON     `json:"knowledge_base"`
}

type entryJSON struct {
	Category  string         `json:"category,omitempty"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content"`
	Source    string         `json:"source,omitempty"`
	Book      string         `json:"book,omitempty"`
	Page      int            `json:"page,omitempty"`
	ChunkID   string         `json:"chunk_id,omitempty"`
	Embedding *embeddingJSON `json:"embedding,omitempty"`
}

type embeddingJSON struct {
	Vector    []float32 `json:"vector"`
	Dimension int       `json:"dimension"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stamp recomputes the embedding summary in the metadata.
func (d *Document) Stamp(model string, dim int, now time.Time) {
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	embedded := 0
	for _, e := range d.Entries {
		if e.HasEmbedding(dim) {
			embedded++
		}
	}
	d.Metadata[KeyEmbeddingModel] = model
	d.Metadata[KeyEmbeddingDimension] = dim
	d.Metadata[KeyTotalProcessed] = len(d.Entries)
	d.Metadata[KeyEmbeddedCount] = embedded
	d.Metadata[KeyEmbeddingRate] = FormatRate(embedded, len(d.Entries))
	d.Metadata[KeyUpdatedAt] = now.UTC().Format(time.RFC3339)
}

// FormatRate renders part/total as a percentage with two decimals.
func FormatRate(part, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}

// Read loads a staging file.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read staging file: %w", err)
	}
	return Decode(data)
}

// Decode parses a staging document.
func Decode(data []byte) (*Document, error) {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if raw.SchemaVersion == nil {
		return nil, fmt.Errorf("%w: schema_version missing", ErrUnsupportedSchema)
	}
	if *raw.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSchema, *raw.SchemaVersion)
	}

	doc := &Document{
		Metadata:   raw.Metadata,
		Statistics: raw.Statistics,
		Entries:    make([]*core.Entry, len(raw.KnowledgeBase)),
	}
	for i, e := range raw.KnowledgeBase {
		doc.Entries[i] = e.toEntry()
	}
	return doc, nil
}

// Encode renders doc as indented JSON. Non-ASCII text is written as-is.
func Encode(doc *Document) ([]byte, error) {
	version := SchemaVersion
	raw := documentJSON{
		SchemaVersion: &version,
		Metadata:      doc.Metadata,
		Statistics:    doc.Statistics,
		KnowledgeBase: make([]entryJSON, len(doc.Entries)),
	}
	if raw.Metadata == nil {
		raw.Metadata = map[string]any{}
	}
	for i, e := range doc.Entries {
		raw.KnowledgeBase[i] = fromEntry(e)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return nil, fmt.Errorf("encode staging file: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores doc at path. The data goes to a temporary file in the same
// directory first and is renamed into place.
func Write(path string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".staging-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename staging file: %w", err)
	}
	return nil
}

func (e entryJSON) toEntry() *core.Entry {
	entry := &core.Entry{
		Category: e.Category,
		Title:    e.Title,
		Content:  e.Content,
		Source:   e.Source,
		Book:     e.Book,
		Page:     e.Page,
		ChunkID:  e.ChunkID,
	}
	if e.Embedding != nil {
		entry.Embedding = &core.EmbeddingInfo{
			Vector:    e.Embedding.Vector,
			Dimension: e.Embedding.Dimension,
			Model:     e.Embedding.Model,
			CreatedAt: e.Embedding.CreatedAt,
		}
	}
	return entry
}

func fromEntry(e *core.Entry) entryJSON {
	out := entryJSON{
		Category: e.Category,
		Title:    e.Title,
		Content:  e.Content,
		Source:   e.Source,
		Book:     e.Book,
		Page:     e.Page,
		ChunkID:  e.ChunkID,
	}
	if e.Embedding != nil {
		out.Embedding = &embeddingJSON{
			Vector:    e.Embedding.Vector,
			Dimension: e.Embedding.Dimension,
			Model:     e.Embedding.Model,
			CreatedAt: e.Embedding.CreatedAt,
		}
	}
	return out
}
