package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory keeps one bucket per key in process memory.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count     int
	windowEnd time.Time
}

var _ Limiter = (*Memory)(nil)

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		m.sweep(now)
		m.buckets[key] = &bucket{count: 1, windowEnd: now.Add(m.window)}
		return Decision{Allowed: true, Remaining: m.limit - 1}, nil
	}

	if b.count >= m.limit {
		return Decision{Allowed: false, RetryAfter: b.windowEnd.Sub(now)}, nil
	}

	b.count++
	return Decision{Allowed: true, Remaining: m.limit - b.count}, nil
}

// sweep drops expired buckets so the map does not grow with every client
// ever seen. Called with mu held, only when a new window opens.
func (m *Memory) sweep(now time.Time) {
	for k, b := range m.buckets {
		if !now.Before(b.windowEnd) {
			delete(m.buckets, k)
		}
	}
}
