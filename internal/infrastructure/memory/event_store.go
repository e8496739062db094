package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/domain/repository"
)

// EventStore is a mutex-guarded, append-only store with the same optimistic
// version check as the durable one. Used by tests and local development.
type EventStore struct {
	mu      sync.Mutex
	streams map[string][]event.Envelope
	order   []string // aggregate ids in first-seen order, for FindAll
}

func NewEventStore() *EventStore {
	return &EventStore{streams: map[string][]event.Envelope{}}
}

func (s *EventStore) Append(_ context.Context, env event.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[env.AggregateID]
	var current int64
	if len(stream) > 0 {
		current = stream[len(stream)-1].Version
	}
	if env.Version != current+1 {
		return repository.ErrConcurrentModification
	}

	if len(stream) == 0 {
		s.order = append(s.order, env.AggregateID)
	}
	s.streams[env.AggregateID] = append(stream, env)
	return nil
}

func (s *EventStore) FindByAggregate(ctx context.Context, aggregateID string) ([]event.Envelope, error) {
	return s.FindByAggregateSince(ctx, aggregateID, 0)
}

func (s *EventStore) FindByAggregateSince(_ context.Context, aggregateID string, since int64) ([]event.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	out := make([]event.Envelope, 0, len(stream))
	for _, env := range stream {
		if env.Version > since {
			out = append(out, env)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *EventStore) FindAll(_ context.Context) ([]event.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]event.Envelope, 0)
	for _, id := range s.order {
		out = append(out, s.streams[id]...)
	}
	return out, nil
}

var _ repository.EventStore = (*EventStore)(nil)
