package stream

import (
	"sync"
	"time"
)

// rateLimiter grants at most one broadcast per sensor per interval. Instants
// come from time.Now, whose embedded monotonic reading makes the elapsed
// comparison immune to wall-clock skew.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval, last: make(map[string]time.Time)}
}

// allow records and grants the broadcast unless one was already accepted for
// this sensor within the interval.
func (l *rateLimiter) allow(sensorID string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.last[sensorID]; ok && now.Sub(prev) < l.interval {
		return false
	}
	l.last[sensorID] = now
	return true
}
