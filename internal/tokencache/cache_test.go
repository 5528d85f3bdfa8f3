package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func countingFetch(calls *int32, lifetime time.Duration) FetchFunc {
	return func(ctx context.Context) (Grant, error) {
		n := atomic.AddInt32(calls, 1)
		return Grant{Value: fmt.Sprintf("token-%d", n), Lifetime: lifetime}, nil
	}
}

func TestCache_ReusesTokenOutsideSafetyMargin(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	var calls int32

	c := New(countingFetch(&calls, 10*time.Minute), time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	tok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	expiry := start.Add(10 * time.Minute)

	clock.Set(expiry.Add(-61 * time.Second))
	tok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_RefreshesInsideSafetyMargin(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	var calls int32

	c := New(countingFetch(&calls, 10*time.Minute), time.Hour, WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.Get(ctx)
	require.NoError(t, err)

	clock.Set(start.Add(10*time.Minute - 30*time.Second))
	tok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	slot, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(10*time.Minute), slot.ExpiresAt)
}

func TestCache_RefreshesExactlyAtMargin(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	var calls int32

	c := New(countingFetch(&calls, 10*time.Minute), time.Hour, WithClock(clock.Now))

	_, _ = c.Get(context.Background())
	clock.Set(start.Add(10*time.Minute - DefaultSafetyMargin))
	_, _ = c.Get(context.Background())

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_DefaultLifetimeWhenProviderOmitsIt(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	var calls int32

	c := New(countingFetch(&calls, 0), 55*time.Minute, WithClock(clock.Now))
	_, err := c.Get(context.Background())
	require.NoError(t, err)

	slot, ok := c.Peek()
	require.True(t, ok)
	assert.Equal(t, start.Add(55*time.Minute), slot.ExpiresAt)
}

func TestCache_CustomSafetyMargin(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	var calls int32

	c := New(countingFetch(&calls, 10*time.Minute), time.Hour, WithClock(clock.Now), WithSafetyMargin(5*time.Minute))
	_, _ = c.Get(context.Background())

	clock.Set(start.Add(6 * time.Minute))
	_, _ = c.Get(context.Background())

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_FetchErrorIsReturnedAndNothingCached(t *testing.T) {
	fetchErr := domainErrors.NotConfigured("paypal", "client_id")
	c := New(func(ctx context.Context) (Grant, error) {
		return Grant{}, fetchErr
	}, time.Hour)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, domainErrors.ErrProviderNotConfigured)

	_, ok := c.Peek()
	assert.False(t, ok)
}

func TestCache_EmptyTokenIsAuthenticationFailure(t *testing.T) {
	c := New(func(ctx context.Context) (Grant, error) {
		return Grant{Lifetime: time.Hour}, nil
	}, time.Hour)

	_, err := c.Get(context.Background())
	assert.True(t, errors.Is(err, domainErrors.ErrAuthenticationFailed))
}

func TestCache_InvalidateForcesRefresh(t *testing.T) {
	var calls int32
	c := New(countingFetch(&calls, time.Hour), time.Hour)

	_, _ = c.Get(context.Background())
	c.Invalidate()
	tok, err := c.Get(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestCache_RefreshHook(t *testing.T) {
	var calls, refreshes int32
	c := New(countingFetch(&calls, time.Hour), time.Hour, WithRefreshHook(func() {
		atomic.AddInt32(&refreshes, 1)
	}))

	_, _ = c.Get(context.Background())
	_, _ = c.Get(context.Background())

	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshes))
}

func TestCache_ConcurrentRefreshesAreTolerated(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	c := New(func(ctx context.Context) (Grant, error) {
		n := atomic.AddInt32(&calls, 1)
		<-release
		return Grant{Value: fmt.Sprintf("token-%d", n), Lifetime: time.Hour}, nil
	}, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	slot, ok := c.Peek()
	require.True(t, ok)
	assert.Contains(t, []string{"token-1", "token-2"}, slot.Value)
}
