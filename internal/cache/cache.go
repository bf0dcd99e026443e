// Package cache provides the answer cache behind a small client interface,
// with in-memory and Redis implementations.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrCacheMiss is returned when a key is not present.
var ErrCacheMiss = errors.New("cache miss")

// Client is the cache interface the query path depends on.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// MemoryClient is a TTL map cache for development and tests.
type MemoryClient struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an in-memory cache. maxEntries <= 0 means
// unbounded.
func NewMemoryClient(maxEntries int) *MemoryClient {
	return &MemoryClient{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
	}
}

// Get returns the cached value or ErrCacheMiss.
func (m *MemoryClient) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value. A zero ttl means no expiry.
func (m *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Crude eviction: drop an arbitrary entry when full. Good enough for
	// a dev cache; production uses Redis.
	if m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		if _, ok := m.entries[key]; !ok {
			for k := range m.entries {
				delete(m.entries, k)
				break
			}
		}
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes a key.
func (m *MemoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// DeleteByPrefix removes every key with the given prefix.
func (m *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryClient) Close() error {
	return nil
}
