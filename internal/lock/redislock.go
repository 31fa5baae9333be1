// Package lock provides a Redis mutex keyed by name. Ownership is tracked
// with a random token so an expired holder cannot release a newer lease.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when MaxWait elapses before the lock frees up.
var ErrNotAcquired = errors.New("lock: not acquired")

var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

type Locker struct {
	R            redis.Cmdable
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long acquisition polls. Zero means until ctx is done.
	MaxWait time.Duration
}

// Lease is a held lock.
type Lease struct {
	r     redis.Cmdable
	key   string
	token string
}

// Release deletes the key if the lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	return unlock.Run(ctx, l.r, []string{l.key}, l.token).Err()
}

func (l Locker) Key(name string) string {
	if l.Prefix == "" {
		return "lock:" + name
	}
	return l.Prefix + name
}

// Acquire polls SET NX until it wins, ctx ends or MaxWait passes.
func (l Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = defaultRetry
	}
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, l.MaxWait, ErrNotAcquired)
		defer cancel()
	}

	lease := &Lease{r: l.R, key: l.Key(name), token: uuid.NewString()}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, lease.key, lease.token, ttl).Result()
		switch {
		case ok:
			return lease, nil
		case err != nil && ctx.Err() == nil:
			return nil, fmt.Errorf("lock: acquire %s: %w", lease.key, err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), ErrNotAcquired) {
				return nil, ErrNotAcquired
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WithLock runs fn while holding name and always releases afterwards.
func (l Locker) WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	lease, err := l.Acquire(ctx, name, ttl)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = lease.Release(releaseCtx)
	}()
	return fn(ctx)
}
