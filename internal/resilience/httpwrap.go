package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a response whose status was treated as a failure.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// RetryPolicy decides whether a failed attempt may be repeated.
type RetryPolicy func(resp *http.Response, err error) bool

// RetryTransient retries network errors and 5xx responses but never 4xx
// responses or cancelled contexts.
func RetryTransient(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrOpenCircuit)
	}
	return resp != nil && resp.StatusCode >= 500
}

// HTTPClient sends gateway calls through a Breaker, retrying failures the
// Retry policy accepts with jittered exponential backoff.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Retry       RetryPolicy
}

var errNoClient = errors.New("resilience: http client not configured")

// Do sends req up to MaxAttempts times, replaying a buffered copy of its
// body. Responses below 500 are returned as is, so callers handle 4xx
// themselves. A 5xx on the last attempt becomes *StatusError.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errNoClient
	}
	cl = cl.withDefaults()
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if !cl.Breaker.Allow(ctx) {
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, cloneRequest(ctx, req, body))
		ok := err == nil && resp.StatusCode < http.StatusInternalServerError
		cl.Breaker.Report(ctx, ok)
		if ok {
			return resp, nil
		}

		again := cl.Retry(resp, err) && attempt < cl.MaxAttempts
		lastErr = err
		if err == nil {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
			drain(resp)
		}
		if !again {
			return nil, lastErr
		}
		if err := sleep(ctx, Backoff(cl.BaseBackoff, attempt, cl.Jitter)); err != nil {
			return nil, err
		}
	}
}

func (cl HTTPClient) withDefaults() HTTPClient {
	cl.MaxAttempts = max(cl.MaxAttempts, 1)
	if cl.BaseBackoff <= 0 {
		cl.BaseBackoff = 100 * time.Millisecond
	}
	if cl.Retry == nil {
		cl.Retry = RetryTransient
	}
	return cl
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the per-attempt deadline alive until the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()
	return data, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	return clone
}
