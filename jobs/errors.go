package jobs

import "errors"

var (
	// ErrQueueRequired is returned when a job queue is not provided.
	ErrQueueRequired = errors.New("job queue required")

	// ErrNoHandler is returned for a job whose kind has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job kind")

	// ErrInvalidLease is returned for a non-positive lease duration.
	ErrInvalidLease = errors.New("lease must be positive")

	// ErrAbandoned is passed to abandon handlers for jobs delivered more
	// than the maximum number of times.
	ErrAbandoned = errors.New("job abandoned after too many deliveries")
)
