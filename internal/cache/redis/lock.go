package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/polybets/betrouter/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager is a distributed per-slip lock built on Redis SETNX with a TTL
// and a Lua-based conditional unlock. It satisfies the orchestrator's
// SlipLocker contract: Acquire blocks, polling until the lock is obtained or
// the context expires.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	retry    time.Duration
}

// NewLockManager creates a LockManager. ttl bounds how long a crashed holder
// can wedge a slip.
func NewLockManager(c *Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		retry:    50 * time.Millisecond,
	}
}

func lockKey(slipID string) string {
	return "lock:slip:" + slipID
}

// Acquire obtains the slip's lock, blocking until it is free or ctx expires.
// The returned release is safe to call more than once.
func (lm *LockManager) Acquire(ctx context.Context, slipID string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(slipID)

	for {
		ok, err := lm.rdb.SetNX(ctx, lk, token, lm.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", slipID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: acquire lock %s: %w: %w", slipID, domain.ErrLockHeld, ctx.Err())
		case <-time.After(lm.retry):
		}
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// Use a background context so unlock succeeds even if the caller's
		// context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}
	return release, nil
}

// TryAcquire attempts a single non-blocking acquisition, returning
// domain.ErrLockHeld when the lock is taken.
func (lm *LockManager) TryAcquire(ctx context.Context, slipID string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(slipID)

	ok, err := lm.rdb.SetNX(ctx, lk, token, lm.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", slipID, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}
	return release, nil
}
