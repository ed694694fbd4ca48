// Package dedup suppresses duplicate deliveries within a TTL window, used to
// drop QoS1 redeliveries of identical payloads.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type Cache struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	seen map[string]time.Time
}

func New(ttl time.Duration, max int) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Cache{ttl: ttl, max: max, seen: make(map[string]time.Time, max)}
}

// Seen reports whether id was recorded within the TTL window. A miss records
// the id. An empty id is never deduplicated.
func (c *Cache) Seen(id string) bool {
	if id == "" {
		return false
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.seen[id]; ok && now.Before(exp) {
		return true
	}
	c.seen[id] = now.Add(c.ttl)
	if len(c.seen) > c.max {
		for k, exp := range c.seen {
			if now.After(exp) {
				delete(c.seen, k)
			}
			if len(c.seen) <= c.max {
				break
			}
		}
	}
	return false
}

// HashPayload derives a stable dedup id from a raw message payload.
func HashPayload(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
