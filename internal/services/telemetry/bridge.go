package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/pkg/dedup"
	"github.com/agrinode/irrigation-backend/pkg/mqtt"
)

// Broadcast is one cache update handed to the broadcaster loop.
type Broadcast struct {
	SensorID string
	Reading  model.SensorReading
}

// Bridge subscribes to the sensor topics, updates the cache on every inbound
// message and enqueues a broadcast. The cache mutation is the only durable
// effect; delivery to viewers is best-effort.
type Bridge struct {
	consumer mqtt.IConsumer
	cache    *Cache
	out      chan<- Broadcast
	sink     func(model.SensorReading) // optional history hook
	deduper  *dedup.Cache
}

func NewBridge(consumer mqtt.IConsumer, cache *Cache, out chan<- Broadcast, sink func(model.SensorReading)) *Bridge {
	b := &Bridge{
		consumer: consumer,
		cache:    cache,
		out:      out,
		sink:     sink,
		deduper:  dedup.New(10*time.Minute, 20000),
	}
	consumer.SetHandler(b.handleMessage)
	return b
}

// Start blocks until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.consumer.Consume(ctx)
}

func (b *Bridge) handleMessage(topic string, msg paho.Message) error {
	reading, err := ParseReading(topic, msg.Payload(), time.Now().UTC())
	if err != nil {
		// Malformed messages are dropped; they must never crash the bridge
		// or block other sensors' delivery.
		log.Printf("bridge: bad payload on %s: %v", topic, err)
		return nil
	}

	// The cache write is exempt from redelivery suppression: it must always
	// hold the newest reading for the sensor.
	b.cache.Put(reading)

	if b.deduper.Seen(redeliveryID(topic, msg)) {
		return nil
	}

	if b.sink != nil {
		b.sink(reading)
	}

	select {
	case b.out <- Broadcast{SensorID: reading.SensorID, Reading: reading}:
	default:
		log.Printf("bridge: broadcast queue full, dropping update for %s", reading.SensorID)
	}
	return nil
}

// redeliveryID names one QoS1 delivery. A broker redelivery reuses the packet
// id on the same topic; a fresh publish of an identical payload gets a new
// one, so repeated values and identical values on other topics are never
// suppressed.
func redeliveryID(topic string, msg paho.Message) string {
	return fmt.Sprintf("%s|%d|%s", topic, msg.MessageID(), dedup.HashPayload(msg.Payload()))
}

// ParseReading accepts two payload forms:
//
//  1. a JSON object with optional sensor_id (topic segment fallback) and
//     optional timestamp (fallback supplied by the caller);
//  2. a bare numeric payload on sensors/<id>/<measurement>.
//
// Missing or unparseable numeric fields stay absent, they are never coerced
// to zero.
func ParseReading(topic string, payload []byte, fallback time.Time) (model.SensorReading, error) {
	parts := strings.Split(topic, "/")

	var m map[string]any
	if err := json.Unmarshal(payload, &m); err == nil {
		r := model.SensorReading{Timestamp: fallback}
		if v, ok := m["sensor_id"].(string); ok {
			r.SensorID = v
		}
		if r.SensorID == "" && len(parts) >= 2 {
			r.SensorID = parts[1]
		}
		if r.SensorID == "" {
			return model.SensorReading{}, errors.New("message missing sensor_id")
		}
		for _, name := range []string{"moisture", "temperature", "humidity", "light"} {
			if f, ok := numField(m, name); ok {
				r.SetMeasurement(name, f)
			}
		}
		if ts, ok := m["timestamp"].(string); ok && ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				r.Timestamp = t.UTC()
			}
		}
		return r, nil
	}

	// Bare value form: sensors/<id>/<measurement> with a numeric payload.
	if len(parts) >= 3 {
		value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
		if err == nil {
			r := model.SensorReading{SensorID: parts[1], Timestamp: fallback}
			if r.SetMeasurement(parts[2], value) {
				return r, nil
			}
			return model.SensorReading{}, errors.New("unknown measurement " + parts[2])
		}
	}

	return model.SensorReading{}, errors.New("unparseable payload")
}

// numField reads a numeric JSON value that may arrive as a number or a
// numeric string.
func numField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
