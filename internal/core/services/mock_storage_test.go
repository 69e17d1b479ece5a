package services

import (
	"context"
	"sync"
	"time"

	"github.com/quatrix/rate-limit/internal/core/domain"
	"github.com/quatrix/rate-limit/internal/core/ports"
)

// mockStorage keeps newest-first lists in memory and counts every call.
type mockStorage struct {
	mu      sync.Mutex
	lists   map[string][]float64
	ttls    map[string]time.Duration
	locks   map[string]string
	reads   map[string]int
	ops     []string
	failOn  map[string]error
	onIndex func(key string)

	lockAttempts int
	releases     int
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		lists:  make(map[string][]float64),
		ttls:   make(map[string]time.Duration),
		locks:  make(map[string]string),
		reads:  make(map[string]int),
		failOn: make(map[string]error),
	}
}

func (m *mockStorage) Push(_ context.Context, key string, ts float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["push"]; err != nil {
		return err
	}
	m.ops = append(m.ops, "push "+key)
	m.lists[key] = append([]float64{ts}, m.lists[key]...)
	return nil
}

func (m *mockStorage) Trim(_ context.Context, key string, length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "trim "+key)
	if int64(len(m.lists[key])) > length {
		m.lists[key] = m.lists[key][:length]
	}
	return nil
}

func (m *mockStorage) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "expire "+key)
	m.ttls[key] = ttl
	return nil
}

// Index runs onIndex after the read, so a hook sits between a caller's read and its write.
func (m *mockStorage) Index(_ context.Context, key string, index int64) (float64, bool, error) {
	ts, ok, err := m.index(key, index)
	if m.onIndex != nil {
		m.onIndex(key)
	}
	return ts, ok, err
}

func (m *mockStorage) index(key string, index int64) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["index"]; err != nil {
		return 0, false, err
	}
	m.reads[key]++
	list := m.lists[key]
	if index < 0 || index >= int64(len(list)) {
		return 0, false, nil
	}
	return list[index], true, nil
}

func (m *mockStorage) TryAcquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockAttempts++
	if err := m.failOn["lock"]; err != nil {
		return false, err
	}
	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = token
	return true, nil
}

func (m *mockStorage) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	if m.locks[key] != token {
		return domain.ErrLockNotHeld
	}
	delete(m.locks, key)
	return nil
}

// seed fills key with n timestamps at ts, newest first.
func (m *mockStorage) seed(key string, n int, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.lists[key] = append(m.lists[key], toSeconds(ts))
	}
}

func (m *mockStorage) length(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

func (m *mockStorage) readsOf(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[key]
}

func (m *mockStorage) held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) option() Option {
	return WithClock(ports.ClockFunc(c.Now))
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
