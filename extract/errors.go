package extract

import "errors"

var (
	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrUnsupportedMimeType is returned for content no strategy handles.
	ErrUnsupportedMimeType = errors.New("unsupported MIME type")

	// ErrPayloadTooLarge is returned for content above the size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrNoText is returned when extraction produced only whitespace.
	ErrNoText = errors.New("no text extracted")
)
