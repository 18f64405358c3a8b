package embed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidOptions is returned when generator or batch options are out of range.
	ErrInvalidOptions = errors.New("invalid embedding options")

	// ErrNilEmbedder is returned when a generator is built without an embedder.
	ErrNilEmbedder = errors.New("embedder is required")
)
