// Package cache provides the tenant-scoped response cache. Entries live under
// a namespace (the tenant ID) and a namespace is only ever invalidated as a
// whole: any write through the webhook can change every derived figure.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a namespaced byte cache.
type Store interface {
	// Get returns the value and whether it was present and unexpired.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	// InvalidateAll drops every entry of namespace at once.
	InvalidateAll(ctx context.Context, namespace string) error
	Close() error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*memoryEntry
	now        func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		namespaces: make(map[string]map[string]*memoryEntry),
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.namespaces[namespace][key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.namespaces[namespace][key]; ok && cur == entry {
			delete(m.namespaces[namespace], key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]*memoryEntry)
		m.namespaces[namespace] = ns
	}
	ns[key] = entry
	return nil
}

func (m *Memory) InvalidateAll(_ context.Context, namespace string) error {
	m.mu.Lock()
	delete(m.namespaces, namespace)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ns := range m.namespaces {
		n += len(ns)
	}
	return n
}

func (m *Memory) Close() error { return nil }
