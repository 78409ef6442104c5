// README: Redis-backed lease for the acceptance guard; makes the guard hold
// across API instances. TTL bounds how long a crashed holder can block.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type LeaseLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaseLock(client *redis.Client, ttl time.Duration) *LeaseLock {
	return &LeaseLock{client: client, ttl: ttl}
}

func (l *LeaseLock) TryAcquire(ctx context.Context, key, owner string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease acquire %s: %w", key, err)
	}
	return ok, nil
}

func (l *LeaseLock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("lease release %s: %w", key, err)
	}
	return nil
}

// ReleaseOwner drops the acceptance lease for a driver; that is the only key
// this lock guards.
func (l *LeaseLock) ReleaseOwner(ctx context.Context, owner string) error {
	return l.Release(ctx, acceptKey(owner))
}
