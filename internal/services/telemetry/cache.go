package telemetry

import (
	"sort"
	"sync"

	"github.com/agrinode/irrigation-backend/internal/model"
)

// Cache holds the latest reading per sensor. Writes are last-write-wins; no
// history is retained here.
type Cache struct {
	mu       sync.RWMutex
	readings map[string]model.SensorReading
}

func NewCache() *Cache {
	return &Cache{readings: make(map[string]model.SensorReading)}
}

func (c *Cache) Put(r model.SensorReading) {
	c.mu.Lock()
	c.readings[r.SensorID] = r
	c.mu.Unlock()
}

func (c *Cache) Latest(sensorID string) (model.SensorReading, bool) {
	c.mu.RLock()
	r, ok := c.readings[sensorID]
	c.mu.RUnlock()
	return r, ok
}

// Moisture returns the last known moisture for a sensor, false when no
// reading or no moisture measurement exists.
func (c *Cache) Moisture(sensorID string) (float64, bool) {
	r, ok := c.Latest(sensorID)
	if !ok || r.Moisture == nil {
		return 0, false
	}
	return *r.Moisture, true
}

// Snapshot returns all latest readings ordered by sensor id.
func (c *Cache) Snapshot() []model.SensorReading {
	c.mu.RLock()
	out := make([]model.SensorReading, 0, len(c.readings))
	for _, r := range c.readings {
		out = append(out, r)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.readings)
}
