package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idempotency error codes.
const (
	CodeIdemInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeIdemMismatch   = "IDEMPOTENCY_KEY_REUSED"
)

const inFlight = "pending"

// Idem makes write endpoints safe to retry. The first request carrying an
// Idempotency-Key claims it; once the handler finishes with a status below
// 500 the response is stored and replayed to later requests with the same
// key and body. A 5xx frees the key.
type Idem struct {
	R   redis.Cmdable
	TTL time.Duration
}

type storedResponse struct {
	BodyHash    string `json:"bodyHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Sha256Hex returns the lowercase hex SHA-256 of input.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			Fail(w, http.StatusBadRequest, CodeBadRequest, "invalid request body", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(payload))
		bodyHash := Sha256Hex(string(payload))

		ctx := r.Context()
		key := "idem:" + Sha256Hex(r.Method+" "+r.URL.Path+" "+header)
		claimed, err := i.R.SetNX(ctx, key, inFlight, i.ttl()).Result()
		if err != nil {
			Fail(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
			return
		}
		if !claimed {
			i.replay(ctx, w, key, bodyHash)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// detached so a client disconnect does not leave the key pending
		bg := context.WithoutCancel(ctx)
		if rec.status >= http.StatusInternalServerError {
			_ = i.R.Del(bg, key).Err()
			return
		}
		stored, err := json.Marshal(storedResponse{
			BodyHash:    bodyHash,
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err == nil {
			_ = i.R.Set(bg, key, stored, i.ttl()).Err()
		}
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, bodyHash string) {
	raw, err := i.R.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil), err == nil && string(raw) == inFlight:
		Fail(w, http.StatusConflict, CodeIdemInProgress, "a request with this idempotency key is in progress", nil)
		return
	case err != nil:
		Fail(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
		return
	}
	var prev storedResponse
	if err := json.Unmarshal(raw, &prev); err != nil {
		Fail(w, http.StatusConflict, CodeIdemInProgress, "a request with this idempotency key is in progress", nil)
		return
	}
	if prev.BodyHash != bodyHash {
		Fail(w, http.StatusUnprocessableEntity, CodeIdemMismatch, "idempotency key was used with a different request body", nil)
		return
	}
	if prev.ContentType != "" {
		w.Header().Set("Content-Type", prev.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(prev.Status)
	_, _ = w.Write(prev.Body)
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// responseRecorder tees the response so it can be stored for replay.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
