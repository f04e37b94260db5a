package storage

import (
	"context"
	"sync"
	"time"
)

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Sweeper = (*MemoryBackend)(nil)
)

type memoryScope struct {
	values    map[Key]string
	expiresAt time.Time
}

// MemoryBackend keeps browser contexts in process. Suitable for a single
// instance; state is lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	scopes map[string]*memoryScope
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryBackend creates a memory backend. A zero ttl keeps scopes forever.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		scopes: make(map[string]*memoryScope),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *MemoryBackend) expired(s *memoryScope) bool {
	return !s.expiresAt.IsZero() && m.now().After(s.expiresAt)
}

func (m *MemoryBackend) Get(_ context.Context, scope string, key Key) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scopes[scope]
	if !ok || m.expired(s) {
		return "", ErrNotFound
	}
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, scope string, key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scope]
	if !ok || m.expired(s) {
		s = &memoryScope{values: make(map[Key]string)}
		m.scopes[scope] = s
	}
	s.values[key] = value
	if m.ttl > 0 {
		s.expiresAt = m.now().Add(m.ttl)
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, scope string, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scopes[scope]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(s.values, k)
	}
	if len(s.values) == 0 {
		delete(m.scopes, scope)
	}
	return nil
}

// CleanupExpired drops every scope whose ttl has passed
func (m *MemoryBackend) CleanupExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.scopes {
		if m.expired(s) {
			delete(m.scopes, id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of live scopes
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scopes)
}

func (m *MemoryBackend) Close() error {
	return nil
}
