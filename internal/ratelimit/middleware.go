// Package ratelimit throttles write endpoints per client using ulule/limiter.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-tours/internal/common"
)

// CodeRateLimited is returned with HTTP 429.
const CodeRateLimited = "RATE_LIMITED"

// NewRedisStore returns a limiter store shared by every API replica.
func NewRedisStore(client *redis.Client, prefix string) (limiter.Store, error) {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
}

// PerMinute builds a limiter allowing n requests per minute per key.
func PerMinute(store limiter.Store, n int) *limiter.Limiter {
	return limiter.New(store, limiter.Rate{Period: time.Minute, Limit: int64(n)})
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter *limiter.Limiter
	// Key derives the bucket for a request; defaults to the client IP.
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware fails open when the store is unavailable.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		var key string
		if h.Key != nil {
			key = h.Key(r)
		} else {
			key = h.Limiter.GetIPKey(r)
		}
		lctx, err := h.Limiter.Get(r.Context(), r.URL.Path+"|"+key)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			retryAfter := lctx.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			common.Fail(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests, please slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
