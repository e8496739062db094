package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/internal/domain/aggregate"
	"github.com/banku/user-service/internal/domain/event"
)

// maxAppendAttempts bounds the optimistic retry of a load-modify-append cycle.
// Each attempt replays the aggregate fresh, so a lost race converges instead of
// corrupting the version sequence.
const maxAppendAttempts = 3

// UserRepository is the only component that mutates the event log. Every
// command is a load-modify-append cycle guarded by the store's optimistic
// version check, followed by a best-effort publish of the committed event.
type UserRepository struct {
	store  EventStore
	pub    EventPublisher
	emails EmailIndex
	logger *logrus.Logger
}

func NewUserRepository(store EventStore, pub EventPublisher, emails EmailIndex, logger *logrus.Logger) *UserRepository {
	return &UserRepository{store: store, pub: pub, emails: emails, logger: logger}
}

// Load replays the aggregate from its event stream. A deleted aggregate is
// still returned with the tombstone set; callers decide how to surface it.
func (r *UserRepository) Load(ctx context.Context, aggregateID string) (*aggregate.User, error) {
	envs, err := r.store.FindByAggregate(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	u, err := aggregate.Replay(aggregateID, envs)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// loadLive loads an aggregate that commands may act on: it must exist and must
// not be tombstoned.
func (r *UserRepository) loadLive(ctx context.Context, aggregateID string) (*aggregate.User, error) {
	u, err := r.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, ErrNotFound
	}
	return u, nil
}

// FindByEmail resolves an email through the secondary index, falling back to a
// linear scan of the log when the index has no entry. The scan exists for
// index recovery only; it replays every aggregate it touches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*aggregate.User, error) {
	if id, ok, err := r.emails.Lookup(ctx, email); err != nil {
		return nil, err
	} else if ok {
		u, err := r.Load(ctx, id)
		if err == nil && u.Email == email {
			return u, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Stale index entry; fall through to the scan.
	}
	return r.scanByEmail(ctx, email)
}

func (r *UserRepository) scanByEmail(ctx context.Context, email string) (*aggregate.User, error) {
	envs, err := r.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(envs))
	for _, env := range envs {
		if seen[env.AggregateID] {
			continue
		}
		seen[env.AggregateID] = true
		u, err := r.Load(ctx, env.AggregateID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !u.Deleted && u.Email == email {
			// Heal the index so the next lookup skips the scan.
			if cErr := r.emails.Claim(ctx, email, u.ID); cErr != nil && !errors.Is(cErr, ErrDuplicateEmail) && r.logger != nil {
				r.logger.WithError(cErr).WithField("aggregate_id", u.ID).Warn("email index heal failed")
			}
			return u, nil
		}
	}
	return nil, ErrNotFound
}

// Create claims the email, appends the UserCreated event at version 1 and
// publishes it. The index claim is the serialization point: of two concurrent
// creates with the same email exactly one wins, the other gets
// ErrDuplicateEmail before anything reaches the log.
func (r *UserRepository) Create(ctx context.Context, aggregateID string, payload event.UserCreated) (event.Envelope, error) {
	if err := r.emails.Claim(ctx, payload.Email, aggregateID); err != nil {
		return event.Envelope{}, err
	}

	env, err := event.New(aggregateID, payload)
	if err != nil {
		return event.Envelope{}, err
	}
	env.Version = 1

	if err := r.store.Append(ctx, env); err != nil {
		if rErr := r.emails.Release(ctx, payload.Email, aggregateID); rErr != nil && r.logger != nil {
			r.logger.WithError(rErr).WithField("aggregate_id", aggregateID).Warn("email claim rollback failed")
		}
		return event.Envelope{}, err
	}

	r.publish(ctx, env)
	return env, nil
}

// Update appends a UserUpdated event carrying only the fields to change and
// returns the aggregate with the event applied. Lost optimistic races are
// retried with a fresh replay up to maxAppendAttempts.
func (r *UserRepository) Update(ctx context.Context, aggregateID string, payload event.UserUpdated) (*aggregate.User, error) {
	var updated *aggregate.User
	err := r.withRetry(ctx, aggregateID, func(u *aggregate.User) (any, func(event.Envelope) error, error) {
		var releaseOld func() error
		if payload.Email != nil && *payload.Email != u.Email {
			oldEmail := u.Email
			if err := r.emails.Claim(ctx, *payload.Email, aggregateID); err != nil {
				return nil, nil, err
			}
			releaseOld = func() error { return r.emails.Release(ctx, oldEmail, aggregateID) }
		}
		return payload, func(env event.Envelope) error {
			if releaseOld != nil {
				if err := releaseOld(); err != nil && r.logger != nil {
					r.logger.WithError(err).WithField("aggregate_id", aggregateID).Warn("email index release failed")
				}
			}
			updated = u
			return u.Apply(env)
		}, nil
	})
	if err != nil {
		if payload.Email != nil {
			// Undo a claim that never got committed, unless this aggregate
			// already owns the email from a previous version.
			if u, lErr := r.Load(ctx, aggregateID); lErr != nil || u.Email != *payload.Email {
				_ = r.emails.Release(ctx, *payload.Email, aggregateID)
			}
		}
		return nil, err
	}
	return updated, nil
}

// RecordLogin appends a LoginRecorded event for one login attempt.
func (r *UserRepository) RecordLogin(ctx context.Context, aggregateID string, success bool) error {
	return r.withRetry(ctx, aggregateID, func(u *aggregate.User) (any, func(event.Envelope) error, error) {
		return event.LoginRecorded{Success: success}, func(event.Envelope) error { return nil }, nil
	})
}

// Delete appends the tombstone and releases the email claim. A second delete
// against an already-deleted aggregate is rejected with ErrNotFound.
func (r *UserRepository) Delete(ctx context.Context, aggregateID string) error {
	return r.withRetry(ctx, aggregateID, func(u *aggregate.User) (any, func(event.Envelope) error, error) {
		email := u.Email
		return event.UserDeleted{}, func(event.Envelope) error {
			if err := r.emails.Release(ctx, email, aggregateID); err != nil && r.logger != nil {
				r.logger.WithError(err).WithField("aggregate_id", aggregateID).Warn("email index release failed")
			}
			return nil
		}, nil
	})
}

// withRetry runs one load-modify-append cycle per attempt. build receives the
// freshly replayed aggregate and returns the payload to append plus a commit
// hook invoked after a successful append.
func (r *UserRepository) withRetry(ctx context.Context, aggregateID string, build func(*aggregate.User) (any, func(event.Envelope) error, error)) error {
	var lastErr error
	for attempt := 1; attempt <= maxAppendAttempts; attempt++ {
		u, err := r.loadLive(ctx, aggregateID)
		if err != nil {
			return err
		}

		payload, committed, err := build(u)
		if err != nil {
			return err
		}

		env, err := event.New(aggregateID, payload)
		if err != nil {
			return err
		}
		env.Version = u.Version + 1

		if err := r.store.Append(ctx, env); err != nil {
			if errors.Is(err, ErrConcurrentModification) {
				lastErr = err
				if r.logger != nil {
					r.logger.WithFields(logrus.Fields{
						"aggregate_id": aggregateID,
						"version":      env.Version,
						"attempt":      attempt,
					}).Debug("optimistic append lost, retrying")
				}
				continue
			}
			return err
		}

		if err := committed(env); err != nil {
			return fmt.Errorf("apply committed event: %w", err)
		}
		r.publish(ctx, env)
		return nil
	}
	return lastErr
}

// publish forwards a committed event to the bus. Failures are logged and
// swallowed: the log is the source of truth, the bus a downstream channel.
func (r *UserRepository) publish(ctx context.Context, env event.Envelope) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, env); err != nil && r.logger != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":     env.ID,
			"event_type":   env.Type,
			"aggregate_id": env.AggregateID,
		}).Error("event publish failed")
	}
}
