package memory

import (
	"context"
	"sync"

	"github.com/banku/user-service/internal/domain/repository"
)

// EmailIndex is the in-process counterpart of the Redis index: a map guarded
// by a mutex, with the same claim-once semantics.
type EmailIndex struct {
	mu     sync.Mutex
	byMail map[string]string
}

func NewEmailIndex() *EmailIndex {
	return &EmailIndex{byMail: map[string]string{}}
}

func (i *EmailIndex) Claim(_ context.Context, email, aggregateID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if owner, ok := i.byMail[email]; ok && owner != aggregateID {
		return repository.ErrDuplicateEmail
	}
	i.byMail[email] = aggregateID
	return nil
}

func (i *EmailIndex) Lookup(_ context.Context, email string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id, ok := i.byMail[email]
	return id, ok, nil
}

func (i *EmailIndex) Release(_ context.Context, email, aggregateID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if owner, ok := i.byMail[email]; ok && owner == aggregateID {
		delete(i.byMail, email)
	}
	return nil
}

var _ repository.EmailIndex = (*EmailIndex)(nil)
