package mocks

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aimd54/addon-ratings/internal/cache"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MockCache is an in-memory implementation of cache.Cache
// Used for testing without requiring a real Redis instance
type MockCache struct {
	data map[string]entry
	mu   sync.RWMutex

	// Now drives expiry; tests may replace it to jump ahead.
	Now func() time.Time
	// Err, when set, is returned by every call.
	Err error
}

// NewMockCache creates a new mock cache instance
func NewMockCache() *MockCache {
	return &MockCache{
		data: make(map[string]entry),
		Now:  time.Now,
	}
}

func (m *MockCache) live(key string) (entry, bool) {
	e, ok := m.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !m.Now().Before(e.expiresAt) {
		return entry{}, false
	}
	return e, true
}

// Get retrieves a value from the mock cache
func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.live(key)
	if !ok {
		return "", nil // Like Redis, a missing key is not an error
	}
	return e.value, nil
}

// Set stores a value in the mock cache
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: fmt.Sprintf("%v", value)}
	if b, ok := value.([]byte); ok {
		e.value = string(b)
	}
	if expiration > 0 {
		e.expiresAt = m.Now().Add(expiration)
	}
	m.data[key] = e
	return nil
}

// Del deletes keys from the mock cache
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// Incr increments a key's value
func (m *MockCache) Incr(ctx context.Context, key string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incr(key), nil
}

func (m *MockCache) incr(key string) int64 {
	e, _ := m.live(key)
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	m.data[key] = e
	return n
}

// Expire sets an expiration on a key
func (m *MockCache) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.live(key); ok {
		e.expiresAt = m.Now().Add(expiration)
		m.data[key] = e
	}
	return nil
}

// TakeSlots checks and increments the counters under one lock
func (m *MockCache) TakeSlots(ctx context.Context, slots []cache.Slot) ([]int64, bool, error) {
	if m.Err != nil {
		return nil, false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make([]int64, len(slots))
	taken := true
	for i, slot := range slots {
		if e, ok := m.live(slot.Key); ok {
			n, err := strconv.ParseInt(e.value, 10, 64)
			if err != nil {
				return nil, false, fmt.Errorf("counter %s is not an integer: %w", slot.Key, err)
			}
			counts[i] = n
		}
		if counts[i] >= slot.Limit {
			taken = false
		}
	}
	if !taken {
		return counts, false, nil
	}
	for _, slot := range slots {
		m.incr(slot.Key)
		e := m.data[slot.Key]
		e.expiresAt = m.Now().Add(slot.TTL)
		m.data[slot.Key] = e
	}
	return counts, true, nil
}

// Health always returns nil for mock
func (m *MockCache) Health(ctx context.Context) error {
	return m.Err
}

// Close is a no-op for mock
func (m *MockCache) Close() error {
	return nil
}

// Has reports whether a live key exists (test helper)
func (m *MockCache) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live(key)
	return ok
}
