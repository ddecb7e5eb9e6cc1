package bulk

import "errors"

// Engine-specific errors
var (
	// ErrJobNotFound is returned when no active or historical job has the ID
	ErrJobNotFound = errors.New("bulk job not found")
	// ErrNoItems is returned when a job is submitted with no items
	ErrNoItems = errors.New("bulk job requires at least one item")
	// ErrTooManyItems is returned when a job exceeds the per-job item cap
	ErrTooManyItems = errors.New("bulk job exceeds item cap")
	// ErrUnknownKind is returned for an unrecognized operation kind
	ErrUnknownKind = errors.New("unknown bulk operation kind")
	// ErrBatchSizeOutOfRange is returned when the requested batch size is
	// outside the configured bounds
	ErrBatchSizeOutOfRange = errors.New("batch size outside configured bounds")
	// ErrValueRequired is returned when create/update items carry no value
	ErrValueRequired = errors.New("item value is required for this kind")
	// ErrDestinationRequired is returned when copy/migrate items carry no destination
	ErrDestinationRequired = errors.New("item destination is required for this kind")
	// ErrItemKeyRequired is returned when an item has no store or key
	ErrItemKeyRequired = errors.New("item store and key are required")
	// ErrNotCancellable is returned when cancelling a job that is not pending or running
	ErrNotCancellable = errors.New("job is not pending or running")
	// ErrNotRollbackable is returned when the job kind cannot be rolled back
	ErrNotRollbackable = errors.New("job cannot be rolled back")
	// ErrNoRollbackData is returned when a rollback is requested but nothing was captured
	ErrNoRollbackData = errors.New("job has no rollback data")
	// ErrRollbackInvalidState is returned when the job is not in a rollbackable state
	ErrRollbackInvalidState = errors.New("job must be completed or failed to roll back")
)
