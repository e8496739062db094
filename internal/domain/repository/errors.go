package repository

import "errors"

var (
	// ErrNotFound means no events exist for the aggregate, or a command
	// targeted an already-deleted aggregate.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is a create-time collision on the email uniqueness
	// constraint, detected at the index claim.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrConcurrentModification means the append lost the optimistic version
	// check against a concurrent writer. Retryable: redo the whole
	// load-modify-append cycle.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrStoreUnavailable means the durable log rejected the write. Fatal for
	// the command; no partial state becomes visible.
	ErrStoreUnavailable = errors.New("event store unavailable")
)
