package rate

import (
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// Limiter answers whether a keyed caller may proceed under the given limit
// per window. When denied, the second return is how long to wait.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// MemoryLimiter keeps one token bucket per key. The bucket refills at
// limit/window and allows bursts up to the full limit.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*xrate.Limiter
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*xrate.Limiter)}
}

func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 {
		return false, window
	}

	m.mu.Lock()
	lim, ok := m.buckets[key]
	if !ok {
		lim = xrate.NewLimiter(xrate.Every(window/time.Duration(limit)), limit)
		m.buckets[key] = lim
	}
	m.mu.Unlock()

	r := lim.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}
