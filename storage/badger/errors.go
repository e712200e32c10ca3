package badger

import "errors"

var (
	// ErrBackendRequired is returned when a store is constructed without a backend.
	ErrBackendRequired = errors.New("badger backend is required")

	// ErrEmbedderRequired is returned when the document index is constructed without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")
)
