package cartmeta

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrOverflowMissing is returned when a referenced cart has expired or never existed.
var ErrOverflowMissing = errors.New("overflow cart not found")

const overflowPrefix = "cart:overflow:"

// RedisOverflow stores oversized carts in Redis under a random reference.
type RedisOverflow struct {
	R   *redis.Client
	TTL time.Duration
}

func (o RedisOverflow) Put(ctx context.Context, payload []byte) (string, error) {
	if o.R == nil {
		return "", errors.New("overflow store not configured")
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	ref := uuid.NewString()
	if err := o.R.Set(ctx, overflowPrefix+ref, payload, ttl).Err(); err != nil {
		return "", err
	}
	return ref, nil
}

func (o RedisOverflow) Get(ctx context.Context, ref string) ([]byte, error) {
	if o.R == nil {
		return nil, errors.New("overflow store not configured")
	}
	data, err := o.R.Get(ctx, overflowPrefix+ref).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrOverflowMissing
	}
	return data, err
}
