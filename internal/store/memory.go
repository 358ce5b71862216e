package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process KV used by tests and dev tooling. Expiry is
// checked lazily on read; there is no background cleanup.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func NewMemory() *Memory {
	return &Memory{
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// SetClock overrides the time source. Tests use it to simulate TTL expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value}
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if e.expiresAt.IsZero() || e.expiresAt.After(m.now()) {
			return false, nil
		}
	}
	m.entries[key] = memoryEntry{value: value}
	return true, nil
}

func (m *Memory) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// TTL reports the remaining lifetime of key. Zero means no expiry; a
// negative value means the key is absent. Test helper.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return -1
	}
	if e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(m.now())
}

func (m *Memory) Ping(_ context.Context) error { return nil }
