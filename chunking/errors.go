package chunking

import "errors"

var (
	// ErrInvalidTargetSize is returned when the target size is not positive.
	ErrInvalidTargetSize = errors.New("target size must be positive")

	// ErrInvalidOverlap is returned when overlap is negative or not smaller than the target size.
	ErrInvalidOverlap = errors.New("overlap must be >= 0 and smaller than the target size")

	// ErrInvalidSnapWindow is returned when the snap window is outside [0, 1].
	ErrInvalidSnapWindow = errors.New("snap window must be between 0 and 1")
)
