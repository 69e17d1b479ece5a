package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
	"github.com/quatrix/rate-limit/internal/core/services"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestStorage_IndexCountsFromNewest(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, ts := range []float64{1, 2, 3} {
		require.NoError(t, s.Push(ctx, "k", ts))
	}

	head, ok, err := s.Index(ctx, "k", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, head)

	oldest, ok, err := s.Index(ctx, "k", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, oldest)

	_, ok, err = s.Index(ctx, "k", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Index(ctx, "missing", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorage_TrimKeepsNewest(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, ts := range []float64{1, 2, 3, 4} {
		require.NoError(t, s.Push(ctx, "k", ts))
	}
	require.NoError(t, s.Trim(ctx, "k", 2))

	assert.Equal(t, 2, s.Len("k"))
	last, ok, err := s.Index(ctx, "k", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.0, last)

	require.NoError(t, s.Trim(ctx, "k", 0))
	assert.Zero(t, s.Len("k"))
	require.NoError(t, s.Trim(ctx, "missing", 5))
}

func TestStorage_Expire(t *testing.T) {
	clock := newClock()
	s := New(WithNow(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "k", 1))
	require.NoError(t, s.Expire(ctx, "k", time.Second))

	clock.Advance(999 * time.Millisecond)
	assert.Equal(t, 1, s.Len("k"))

	clock.Advance(time.Millisecond)
	_, ok, err := s.Index(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// A push after expiry starts a fresh list without TTL.
	require.NoError(t, s.Push(ctx, "k", 2))
	clock.Advance(time.Hour)
	assert.Equal(t, 1, s.Len("k"))
}

func TestStorage_Locks(t *testing.T) {
	clock := newClock()
	s := New(WithNow(clock.Now))
	ctx := context.Background()

	ok, err := s.TryAcquire(ctx, "lock:k", "a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquire(ctx, "lock:k", "b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Release(ctx, "lock:k", "b"), domain.ErrLockNotHeld)

	// An abandoned lock is taken over after its TTL.
	clock.Advance(10 * time.Second)
	ok, err = s.TryAcquire(ctx, "lock:k", "b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, s.Release(ctx, "lock:k", "a"), domain.ErrLockNotHeld)
	require.NoError(t, s.Release(ctx, "lock:k", "b"))
}

func TestStorage_Cleanup(t *testing.T) {
	clock := newClock()
	s := New(WithNow(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Push(ctx, "short", 1))
	require.NoError(t, s.Expire(ctx, "short", time.Second))
	require.NoError(t, s.Push(ctx, "long", 1))
	require.NoError(t, s.Expire(ctx, "long", time.Hour))
	_, err := s.TryAcquire(ctx, "lock:x", "t", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Size())

	clock.Advance(2 * time.Second)
	s.cleanup()
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, 1, s.Len("long"))
}

func TestStorage_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(WithCleanupInterval(5 * time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	s.StartCleanup(ctx)

	require.NoError(t, s.Push(ctx, "k", 1))
	require.NoError(t, s.Expire(ctx, "k", time.Millisecond))
	require.Eventually(t, func() bool { return s.Size() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
	s.Stop()
}

func TestStorage_WithRateLimiter(t *testing.T) {
	clock := newClock()
	s := New(WithNow(clock.Now))
	limiter, err := services.NewRateLimiterService(s, services.Config{Namespace: "ns"},
		services.WithClock(ports.ClockFunc(clock.Now)))
	require.NoError(t, err)

	req := domain.CheckRequest{
		Key:       "login",
		Rule:      domain.MustParseRule("Or(3/s, user:2/m)"),
		Selectors: domain.SelectorValues{"user": "vova"},
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Check(ctx, req)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Check(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Allowed, "user:2/m is exhausted")

	assert.Equal(t, 2, s.Len("ns:login:user:vova"))
	assert.Equal(t, 2, s.Len("ns:login"))
	ok, err := s.TryAcquire(ctx, "lock:ns:login", "next-owner", time.Second)
	require.NoError(t, err)
	require.True(t, ok, "the check lock was released")
	require.NoError(t, s.Release(ctx, "lock:ns:login", "next-owner"))

	clock.Advance(61 * time.Second)
	decision, err = limiter.Check(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "lists expired after their TTL")
	assert.Equal(t, 1, s.Len("ns:login:user:vova"))
}
