package repository

import (
	"context"

	"github.com/banku/user-service/internal/domain/event"
)

// EventStore is the durable, append-only event log.
type EventStore interface {
	// Append stores one event. It must reject an envelope whose
	// (aggregate id, version) pair already exists with
	// ErrConcurrentModification, and report write failures as
	// ErrStoreUnavailable.
	Append(ctx context.Context, env event.Envelope) error

	// FindByAggregate returns all events for one aggregate, ascending by
	// version. An empty slice is not an error.
	FindByAggregate(ctx context.Context, aggregateID string) ([]event.Envelope, error)

	// FindByAggregateSince returns events with version > since, ascending.
	FindByAggregateSince(ctx context.Context, aggregateID string, since int64) ([]event.Envelope, error)

	// FindAll returns every stored event. Only the linear-scan fallback
	// lookup uses this; it does not scale and exists for index recovery.
	FindAll(ctx context.Context) ([]event.Envelope, error)
}

// EventPublisher forwards committed events to the message bus. Publication is
// best-effort: the log is the source of truth and a failed publish never rolls
// back the append. Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, env event.Envelope) error
}

// EmailIndex is the secondary index email -> aggregate id. The claim is the
// serialization point for email uniqueness: of two concurrent claims for the
// same email, exactly one succeeds.
type EmailIndex interface {
	// Claim atomically binds email to aggregateID, failing with
	// ErrDuplicateEmail when the email is already bound to another aggregate.
	Claim(ctx context.Context, email, aggregateID string) error

	// Lookup resolves an email to its aggregate id.
	Lookup(ctx context.Context, email string) (string, bool, error)

	// Release unbinds an email, but only if it is bound to aggregateID.
	Release(ctx context.Context, email, aggregateID string) error
}
