package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/banku/user-service/internal/domain/event"
	"github.com/banku/user-service/internal/domain/repository"
)

func appendEvent(t *testing.T, s *EventStore, aggID string, version int64, payload any) event.Envelope {
	t.Helper()
	env, err := event.New(aggID, payload)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	env.Version = version
	if err := s.Append(context.Background(), env); err != nil {
		t.Fatalf("Append v%d: %v", version, err)
	}
	return env
}

func TestAppendEnforcesMonotonicVersions(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	appendEvent(t, s, "agg-1", 1, event.UserCreated{Email: "a@x.com"})
	appendEvent(t, s, "agg-1", 2, event.LoginRecorded{Success: true})

	// A second writer that read version 2 and raced to append version 2
	// again must be rejected.
	env, _ := event.New("agg-1", event.LoginRecorded{Success: false})
	env.Version = 2
	if err := s.Append(ctx, env); !errors.Is(err, repository.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	// So must a gap.
	env.Version = 5
	if err := s.Append(ctx, env); !errors.Is(err, repository.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification for gap, got %v", err)
	}
}

func TestAppendRejectsInvalidEnvelope(t *testing.T) {
	s := NewEventStore()
	env, _ := event.New("agg-1", event.UserDeleted{})
	// Version never assigned.
	if err := s.Append(context.Background(), env); err == nil {
		t.Fatal("expected validation error for version 0")
	}
}

func TestFindByAggregateOrdering(t *testing.T) {
	s := NewEventStore()
	ctx := context.Background()

	appendEvent(t, s, "agg-1", 1, event.UserCreated{Email: "a@x.com"})
	appendEvent(t, s, "agg-2", 1, event.UserCreated{Email: "b@x.com"})
	appendEvent(t, s, "agg-1", 2, event.LoginRecorded{Success: true})
	appendEvent(t, s, "agg-1", 3, event.UserDeleted{})

	envs, err := s.FindByAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("FindByAggregate: %v", err)
	}
	if len(envs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(envs))
	}
	for i, env := range envs {
		if env.Version != int64(i+1) {
			t.Errorf("position %d: expected version %d, got %d", i, i+1, env.Version)
		}
	}
}

func TestFindByAggregateEmptyIsNotAnError(t *testing.T) {
	s := NewEventStore()
	envs, err := s.FindByAggregate(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByAggregate: %v", err)
	}
	if len(envs) != 0 {
		t.Fatalf("expected empty slice, got %d events", len(envs))
	}
}

func TestFindByAggregateSince(t *testing.T) {
	s := NewEventStore()
	appendEvent(t, s, "agg-1", 1, event.UserCreated{Email: "a@x.com"})
	appendEvent(t, s, "agg-1", 2, event.LoginRecorded{Success: true})
	appendEvent(t, s, "agg-1", 3, event.LoginRecorded{Success: false})

	envs, err := s.FindByAggregateSince(context.Background(), "agg-1", 1)
	if err != nil {
		t.Fatalf("FindByAggregateSince: %v", err)
	}
	if len(envs) != 2 {
		t.Fatalf("expected 2 events after version 1, got %d", len(envs))
	}
	if envs[0].Version != 2 || envs[1].Version != 3 {
		t.Errorf("unexpected versions: %d, %d", envs[0].Version, envs[1].Version)
	}
}

func TestFindAllSpansAggregates(t *testing.T) {
	s := NewEventStore()
	appendEvent(t, s, "agg-1", 1, event.UserCreated{Email: "a@x.com"})
	appendEvent(t, s, "agg-2", 1, event.UserCreated{Email: "b@x.com"})
	appendEvent(t, s, "agg-2", 2, event.UserDeleted{})

	envs, err := s.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(envs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(envs))
	}
}

func TestEmailIndexClaimIsExclusive(t *testing.T) {
	idx := NewEmailIndex()
	ctx := context.Background()

	if err := idx.Claim(ctx, "a@x.com", "agg-1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// Re-claim by the same owner is fine.
	if err := idx.Claim(ctx, "a@x.com", "agg-1"); err != nil {
		t.Fatalf("idempotent claim: %v", err)
	}
	if err := idx.Claim(ctx, "a@x.com", "agg-2"); !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	id, ok, err := idx.Lookup(ctx, "a@x.com")
	if err != nil || !ok || id != "agg-1" {
		t.Fatalf("Lookup: id=%q ok=%v err=%v", id, ok, err)
	}

	// Release by a non-owner is a no-op.
	if err := idx.Release(ctx, "a@x.com", "agg-2"); err != nil {
		t.Fatalf("Release non-owner: %v", err)
	}
	if _, ok, _ := idx.Lookup(ctx, "a@x.com"); !ok {
		t.Fatal("claim must survive a non-owner release")
	}

	if err := idx.Release(ctx, "a@x.com", "agg-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok, _ := idx.Lookup(ctx, "a@x.com"); ok {
		t.Fatal("claim must be gone after owner release")
	}
}
