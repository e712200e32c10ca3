package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when a document index is not provided.
	ErrIndexRequired = errors.New("document index required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrResolverRequired is returned when a namespace resolver is not provided.
	ErrResolverRequired = errors.New("namespace resolver required")

	// ErrExtractorRequired is returned when a content extractor is not provided.
	ErrExtractorRequired = errors.New("content extractor required")

	// ErrNotifierRequired is returned when a notification sink is not provided.
	ErrNotifierRequired = errors.New("notification sink required")

	// ErrNotRetryable is returned by Retry for documents that are not in error.
	ErrNotRetryable = errors.New("document is not in error state")
)
