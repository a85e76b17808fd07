package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is a thread-safe in-process cache with per-entry TTL.
// Expired entries are dropped on read and by Serve's periodic sweep.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]entry
	interval time.Duration
	now      func() time.Time
}

// NewMemory creates a cache swept every interval while Serve runs.
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Memory{
		entries:  make(map[string]entry),
		interval: interval,
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		cacheRequests.WithLabelValues("memory", "miss").Inc()
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		cacheRequests.WithLabelValues("memory", "miss").Inc()
		return nil, false, nil
	}
	cacheRequests.WithLabelValues("memory", "hit").Inc()
	return e.data, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{data: value, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	m.entries[key] = entry{data: value, expiresAt: now.Add(ttl)}
	return true, nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Cleanup removes expired entries and returns how many were dropped.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Serve sweeps expired entries until ctx is done. It implements
// suture.Service.
func (m *Memory) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

func (m *Memory) String() string { return "memory-cache" }
