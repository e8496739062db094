package redisindex

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/banku/user-service/internal/domain/repository"
)

// EmailIndex maps email -> aggregate id in Redis. SETNX makes the claim the
// serialization point for email uniqueness across all service instances,
// replacing the full-log scan as the primary lookup path.
type EmailIndex struct {
	rdb *redis.Client
}

func NewEmailIndex(rdb *redis.Client) *EmailIndex {
	return &EmailIndex{rdb: rdb}
}

func key(email string) string { return "user:email:" + email }

func (i *EmailIndex) Claim(ctx context.Context, email, aggregateID string) error {
	ok, err := i.rdb.SetNX(ctx, key(email), aggregateID, 0).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	owner, err := i.rdb.Get(ctx, key(email)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if owner == aggregateID {
		return nil
	}
	return repository.ErrDuplicateEmail
}

func (i *EmailIndex) Lookup(ctx context.Context, email string) (string, bool, error) {
	id, err := i.rdb.Get(ctx, key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Release deletes the mapping only while it still points at aggregateID, so a
// racing re-claim by another aggregate is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (i *EmailIndex) Release(ctx context.Context, email, aggregateID string) error {
	return releaseScript.Run(ctx, i.rdb, []string{key(email)}, aggregateID).Err()
}

var _ repository.EmailIndex = (*EmailIndex)(nil)
