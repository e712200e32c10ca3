package deletion

import "errors"

var (
	// ErrIndexRequired is returned when a document index is not provided.
	ErrIndexRequired = errors.New("document index required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrNotifierRequired is returned when a notification sink is not provided.
	ErrNotifierRequired = errors.New("notification sink required")
)
