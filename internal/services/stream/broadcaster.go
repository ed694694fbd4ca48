package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/model/messages"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
)

const (
	// DefaultRateLimitInterval is the minimum spacing between delivered
	// updates for the same sensor.
	DefaultRateLimitInterval = time.Second
	// DefaultHeartbeatInterval is the liveness-pulse period.
	DefaultHeartbeatInterval = 30 * time.Second
)

// Broadcaster is the single-writer loop between the ingestion bridge and the
// connection registry. The bridge's MQTT callback only enqueues; all fan-out
// decisions happen here.
type Broadcaster struct {
	registry  *Registry
	limiter   *rateLimiter
	in        <-chan telemetry.Broadcast
	heartbeat time.Duration
	metrics   *Metrics
}

func NewBroadcaster(registry *Registry, in <-chan telemetry.Broadcast, rateLimit, heartbeat time.Duration, metrics *Metrics) *Broadcaster {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimitInterval
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Broadcaster{
		registry:  registry,
		limiter:   newRateLimiter(rateLimit),
		in:        in,
		heartbeat: heartbeat,
		metrics:   metrics,
	}
}

// Run blocks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.in:
			b.Broadcast(ev.SensorID, ev.Reading)
		case <-ticker.C:
			b.pulse()
		}
	}
}

// Broadcast delivers an update to every global connection and every
// connection scoped to the sensor. Returns false when the per-sensor rate
// limit suppressed it; that is a no-op, not an error.
func (b *Broadcaster) Broadcast(sensorID string, reading model.SensorReading) bool {
	if !b.limiter.allow(sensorID) {
		b.metrics.rateLimited()
		return false
	}

	payload, err := json.Marshal(messages.NewUpdate(reading))
	if err != nil {
		log.Printf("broadcast: marshal update for %s: %v", sensorID, err)
		return false
	}

	delivered := 0
	for _, c := range b.registry.connsFor(sensorID) {
		if b.registry.deliver(c, payload) {
			delivered++
		}
	}
	b.metrics.sent(delivered)
	return true
}

// pulse sends a heartbeat to every live connection. Failures use the same
// removal policy as broadcast delivery.
func (b *Broadcaster) pulse() {
	payload, err := json.Marshal(messages.NewHeartbeat())
	if err != nil {
		return
	}
	sent := 0
	for _, c := range b.registry.all() {
		if b.registry.deliver(c, payload) {
			sent++
		}
	}
	b.metrics.heartbeat(sent)
}
