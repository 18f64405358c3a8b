package importer

import "errors"

var (
	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrNilStore is returned when an Importer is built without a store.
	ErrNilStore = errors.New("store is required")

	// ErrShortAcknowledgement marks a chunk the store only partly accepted.
	ErrShortAcknowledgement = errors.New("store acknowledged fewer rows than sent")
)
