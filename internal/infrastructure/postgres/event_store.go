package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/domain/repository"
)

// uniqueViolation is the SQLSTATE raised when the (aggregate_id, version)
// unique index rejects a duplicate, i.e. the optimistic concurrency check.
const uniqueViolation = "23505"

// EventStore is the durable event log backed by the user_events table.
// Rows are insert-only; nothing updates or deletes a stored event.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Append(ctx context.Context, env event.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_events (id, aggregate_id, event_type, version, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, env.ID, env.AggregateID, string(env.Type), env.Version, env.Timestamp, env.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrConcurrentModification
		}
		return fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *EventStore) FindByAggregate(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	return s.FindByAggregateSince(ctx, aggregateID, 0)
}

func (s *EventStore) FindByAggregateSince(ctx context.Context, aggregateID string, since int64) ([]event.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_id, event_type, version, occurred_at, payload
		FROM user_events
		WHERE aggregate_id = $1 AND version > $2
		ORDER BY version ASC
	`, aggregateID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func (s *EventStore) FindAll(ctx context.Context) ([]event.Envelope, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_id, event_type, version, occurred_at, payload
		FROM user_events
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows pgx.Rows) ([]event.Envelope, error) {
	out := make([]event.Envelope, 0)
	for rows.Next() {
		var env event.Envelope
		var eventType string
		if err := rows.Scan(&env.ID, &env.AggregateID, &eventType, &env.Version, &env.Timestamp, &env.Payload); err != nil {
			return nil, err
		}
		env.Type = event.Type(eventType)
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
	}
	return out, nil
}

var _ repository.EventStore = (*EventStore)(nil)
