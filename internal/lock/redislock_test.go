package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-tours/internal/lock"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockSerialises(t *testing.T) {
	_, client := newClient(t)
	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- locker.WithLock(ctx, "pi_1", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()
	<-firstDone

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- locker.WithLock(ctx, "pi_1", time.Second, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()

	close(releaseFirst)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnError(t *testing.T) {
	mr, client := newClient(t)
	locker := lock.Locker{R: client, Prefix: "booking:lock:"}
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "pi_2", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("booking:lock:pi_2"))
}

func TestWithLockMaxWait(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("lock:busy", "someone-else"))
	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}

	called := false
	err := locker.WithLock(context.Background(), "busy", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)

	v, err := mr.Get("lock:busy")
	require.NoError(t, err)
	require.Equal(t, "someone-else", v)
}

func TestLeaseDoesNotReleaseNewerHolder(t *testing.T) {
	mr, client := newClient(t)
	locker := lock.Locker{R: client}
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "pi_3", 50*time.Millisecond)
	require.NoError(t, err)
	mr.FastForward(time.Second)

	newer, err := locker.Acquire(ctx, "pi_3", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.True(t, mr.Exists("lock:pi_3"))

	require.NoError(t, newer.Release(ctx))
	require.False(t, mr.Exists("lock:pi_3"))
}
