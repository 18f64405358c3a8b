package reembed

import "errors"

var (
	// ErrStoreRequired is returned when a Reembedder is built without a store.
	ErrStoreRequired = errors.New("store is required")

	// ErrGeneratorRequired is returned when a Reembedder is built without a generator.
	ErrGeneratorRequired = errors.New("embedding generator is required")
)
