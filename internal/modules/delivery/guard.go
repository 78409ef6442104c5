// README: Process-local keyed locks guarding in-flight acceptance. Shared
// state is explicit here because handlers interleave across await points.
package delivery

import (
	"context"
	"sync"
)

// Locker is the acceptance guard. Keys are scoped strings ("accept:<driver>");
// owner identifies the driver so a reconnect can clear everything it holds.
type Locker interface {
	TryAcquire(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key string) error
	ReleaseOwner(ctx context.Context, owner string) error
}

// KeyedLock is the single-process implementation: a plain mutex-protected map,
// no lease. A multi-instance deployment must chain this with the Redis lease
// lock or the check-then-act race reopens across instances.
type KeyedLock struct {
	mu   sync.Mutex
	held map[string]string // key -> owner
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{held: make(map[string]string)}
}

func (l *KeyedLock) TryAcquire(_ context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = owner
	return true, nil
}

func (l *KeyedLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// ReleaseOwner drops every key the owner holds; called by the connection
// registry when a driver reconnects so stale locks cannot block future
// acceptance.
func (l *KeyedLock) ReleaseOwner(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, o := range l.held {
		if o == owner {
			delete(l.held, k)
		}
	}
	return nil
}

// ChainLocker acquires from every underlying locker in order, releasing the
// ones already taken when a later one refuses. Used to stack the process-local
// map with the Redis lease.
type ChainLocker struct {
	lockers []Locker
}

func NewChainLocker(lockers ...Locker) *ChainLocker {
	return &ChainLocker{lockers: lockers}
}

func (c *ChainLocker) TryAcquire(ctx context.Context, key, owner string) (bool, error) {
	for i, l := range c.lockers {
		ok, err := l.TryAcquire(ctx, key, owner)
		if err != nil || !ok {
			for j := i - 1; j >= 0; j-- {
				_ = c.lockers[j].Release(ctx, key)
			}
			return false, err
		}
	}
	return true, nil
}

func (c *ChainLocker) Release(ctx context.Context, key string) error {
	var firstErr error
	for _, l := range c.lockers {
		if err := l.Release(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *ChainLocker) ReleaseOwner(ctx context.Context, owner string) error {
	var firstErr error
	for _, l := range c.lockers {
		if err := l.ReleaseOwner(ctx, owner); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func acceptKey(driverID string) string {
	return "delivery:accept:" + driverID
}
