package pipeline

import "errors"

var (
	// ErrStoreRequired is returned when creating a pipeline without a store.
	ErrStoreRequired = errors.New("store is required")

	// ErrGeneratorRequired is returned when creating a pipeline without an embedding generator.
	ErrGeneratorRequired = errors.New("embedding generator is required")

	// ErrInvalidConfig is returned for sizes or dimensions that cannot work.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
)
