package telemetry

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/pkg/mqtt"
)

type fakeMessage struct {
	topic   string
	payload []byte
	id      uint16
	dup     bool
}

func (m *fakeMessage) Duplicate() bool   { return m.dup }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return m.id }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeConsumer hands injected messages straight to the handler, assigning a
// fresh packet id per delivery the way a broker does.
type fakeConsumer struct {
	handler mqtt.Handler
	nextID  uint16
}

func (c *fakeConsumer) Consume(ctx context.Context) { <-ctx.Done() }
func (c *fakeConsumer) SetHandler(h mqtt.Handler)   { c.handler = h }

func (c *fakeConsumer) inject(topic, payload string) error {
	c.nextID++
	return c.handler(topic, &fakeMessage{topic: topic, payload: []byte(payload), id: c.nextID})
}

// redeliver replays a message with the same packet id and the DUP flag set.
func (c *fakeConsumer) redeliver(topic, payload string, id uint16) error {
	return c.handler(topic, &fakeMessage{topic: topic, payload: []byte(payload), id: id, dup: true})
}

func TestParseReadingJSONObject(t *testing.T) {
	fallback := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	r, err := ParseReading("sensors/V1",
		[]byte(`{"sensor_id":"V1","moisture":42.5,"temperature":21,"timestamp":"2026-08-25T10:30:00Z"}`),
		fallback)
	require.NoError(t, err)
	assert.Equal(t, "V1", r.SensorID)
	require.NotNil(t, r.Moisture)
	assert.Equal(t, 42.5, *r.Moisture)
	require.NotNil(t, r.Temperature)
	assert.Equal(t, 21.0, *r.Temperature)
	assert.Nil(t, r.Humidity)
	assert.Nil(t, r.Light)
	assert.Equal(t, time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC), r.Timestamp)
}

func TestParseReadingSensorIDFromTopic(t *testing.T) {
	fallback := time.Now().UTC()

	r, err := ParseReading("sensors/V3", []byte(`{"moisture":10}`), fallback)
	require.NoError(t, err)
	assert.Equal(t, "V3", r.SensorID)
	assert.Equal(t, fallback, r.Timestamp)
}

func TestParseReadingNumericStringAndBadFields(t *testing.T) {
	r, err := ParseReading("sensors/V1",
		[]byte(`{"sensor_id":"V1","moisture":"55.5","humidity":"n/a","timestamp":"not-a-time"}`),
		time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, r.Moisture)
	assert.Equal(t, 55.5, *r.Moisture)
	// Unparseable fields stay absent instead of collapsing to zero.
	assert.Nil(t, r.Humidity)
}

func TestParseReadingBareValue(t *testing.T) {
	r, err := ParseReading("sensors/V2/moisture", []byte(" 33.5 "), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, "V2", r.SensorID)
	require.NotNil(t, r.Moisture)
	assert.Equal(t, 33.5, *r.Moisture)

	_, err = ParseReading("sensors/V2/pressure", []byte("33.5"), time.Now().UTC())
	assert.Error(t, err)
}

func TestParseReadingRejectsGarbage(t *testing.T) {
	_, err := ParseReading("sensors/V1", []byte("not json"), time.Now().UTC())
	assert.Error(t, err)

	_, err = ParseReading("weird-topic", []byte(`{"moisture":10}`), time.Now().UTC())
	assert.Error(t, err)
}

func TestBridgeUpdatesCacheAndBroadcasts(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 4)

	var sunk []model.SensorReading
	NewBridge(consumer, cache, out, func(r model.SensorReading) { sunk = append(sunk, r) })

	require.NoError(t, consumer.inject("sensors/V1", `{"sensor_id":"V1","moisture":40}`))

	m, ok := cache.Moisture("V1")
	require.True(t, ok)
	assert.Equal(t, 40.0, m)

	require.Len(t, sunk, 1)

	select {
	case b := <-out:
		assert.Equal(t, "V1", b.SensorID)
	default:
		t.Fatal("expected a broadcast")
	}
}

func TestBridgeLastWriteWins(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 4)
	NewBridge(consumer, cache, out, nil)

	require.NoError(t, consumer.inject("sensors/V1", `{"sensor_id":"V1","moisture":40}`))
	require.NoError(t, consumer.inject("sensors/V1", `{"sensor_id":"V1","moisture":45}`))

	m, ok := cache.Moisture("V1")
	require.True(t, ok)
	assert.Equal(t, 45.0, m)
	assert.Equal(t, 1, cache.Len())
}

func TestBridgeDropsMalformed(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 4)
	NewBridge(consumer, cache, out, nil)

	// Malformed payloads are dropped without error: the subscription must
	// survive them.
	require.NoError(t, consumer.inject("sensors/V1", "garbage"))
	assert.Equal(t, 0, cache.Len())
	assert.Len(t, out, 0)
}

func TestBridgeSuppressesRedeliveryNotFreshPublishes(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 8)

	var sunk int
	NewBridge(consumer, cache, out, func(model.SensorReading) { sunk++ })

	payload := `{"sensor_id":"V1","moisture":40}`
	require.NoError(t, consumer.inject("sensors/V1", payload))
	require.NoError(t, consumer.redeliver("sensors/V1", payload, consumer.nextID))

	// One delivery reaches history and the fan-out; the cache still took
	// both writes.
	assert.Len(t, out, 1)
	assert.Equal(t, 1, sunk)
	m, ok := cache.Moisture("V1")
	require.True(t, ok)
	assert.Equal(t, 40.0, m)

	// A fresh publish of the identical payload carries a new packet id and
	// must go through.
	require.NoError(t, consumer.inject("sensors/V1", payload))
	assert.Len(t, out, 2)
	assert.Equal(t, 2, sunk)
}

func TestBridgeIdenticalPayloadsOnDifferentTopics(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 8)
	NewBridge(consumer, cache, out, nil)

	require.NoError(t, consumer.inject("sensors/V1/moisture", "90"))
	require.NoError(t, consumer.inject("sensors/V2/moisture", "90"))

	// V2 must be cached despite the identical payload on another topic.
	for _, sensor := range []string{"V1", "V2"} {
		m, ok := cache.Moisture(sensor)
		require.True(t, ok, sensor)
		assert.Equal(t, 90.0, m)
	}
	assert.Len(t, out, 2)
}

func TestBridgeSteadySensorIsNotSuppressed(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 8)
	NewBridge(consumer, cache, out, nil)

	// A sensor repeating one value is five publishes, not redeliveries:
	// every one reaches the broadcaster queue.
	for i := 0; i < 5; i++ {
		require.NoError(t, consumer.inject("sensors/V1/moisture", "55"))
	}
	assert.Len(t, out, 5)
}

func TestBridgeDropsWhenQueueFull(t *testing.T) {
	consumer := &fakeConsumer{}
	cache := NewCache()
	out := make(chan Broadcast, 1)
	NewBridge(consumer, cache, out, nil)

	require.NoError(t, consumer.inject("sensors/V1", `{"sensor_id":"V1","moisture":40}`))
	require.NoError(t, consumer.inject("sensors/V2", `{"sensor_id":"V2","moisture":41}`))

	// The queue held one update; the second was dropped but still cached.
	assert.Len(t, out, 1)
	_, ok := cache.Moisture("V2")
	assert.True(t, ok)
}

var _ paho.Message = (*fakeMessage)(nil)
