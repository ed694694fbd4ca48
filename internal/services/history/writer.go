package history

import (
	"log"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/agrinode/irrigation-backend/internal/model"
)

// Writer wraps the async Influx write API and tracks the last write error for
// /healthz. A nil *Writer is valid and drops everything, so callers need no
// "is history enabled" branches.
type Writer struct {
	api     api.WriteAPI
	mu      sync.RWMutex
	lastErr time.Time
	counts  map[string]int64
}

// NewWriter starts the listener for Influx's asynchronous write errors.
func NewWriter(w api.WriteAPI) *Writer {
	ww := &Writer{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour),
		counts:  make(map[string]int64),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				ww.mu.Lock()
				ww.lastErr = time.Now()
				ww.mu.Unlock()
				log.Printf("history: influx write error: %v", err)
			}
		}
	}()
	return ww
}

// WriteReading records one sensor reading. Only measurements present in the
// reading become fields.
func (w *Writer) WriteReading(rd model.SensorReading) {
	if w == nil {
		return
	}
	fields := map[string]any{}
	if rd.Moisture != nil {
		fields["moisture"] = *rd.Moisture
	}
	if rd.Temperature != nil {
		fields["temperature"] = *rd.Temperature
	}
	if rd.Humidity != nil {
		fields["humidity"] = *rd.Humidity
	}
	if rd.Light != nil {
		fields["light"] = *rd.Light
	}
	if len(fields) == 0 {
		return
	}

	p := influxdb2.NewPoint("sensor_reading",
		map[string]string{"sensor_id": rd.SensorID},
		fields,
		rd.Timestamp)
	w.api.WritePoint(p)
	w.mark("sensor_reading")
}

// WriteEvent records one closed irrigation event.
func (w *Writer) WriteEvent(ev model.IrrigationEvent) {
	if w == nil {
		return
	}
	fields := map[string]any{
		"planned_minutes": ev.DurationMinutes,
		"requested_by":    ev.RequestedBy,
	}
	if ev.ActualMinutes != nil {
		fields["actual_minutes"] = *ev.ActualMinutes
	}

	ts := ev.StartTime
	if ev.EndTime != nil {
		ts = *ev.EndTime
	}
	p := influxdb2.NewPoint("irrigation_event",
		map[string]string{
			"zone_id": strconv.Itoa(ev.ZoneID),
			"status":  string(ev.Status),
			"origin":  string(ev.Origin),
		},
		fields,
		ts)
	w.api.WritePoint(p)
	w.mark("irrigation_event")
}

func (w *Writer) mark(measurement string) {
	w.mu.Lock()
	w.counts[measurement]++
	w.mu.Unlock()
}

// LastErrorAge reports how long writes have gone without an error.
func (w *Writer) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}

// Count reads the written-point counter for one measurement.
func (w *Writer) Count(measurement string) int64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	c := w.counts[measurement]
	w.mu.RUnlock()
	return c
}
