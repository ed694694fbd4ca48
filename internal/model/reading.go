package model

import "time"

// SensorReading is the latest telemetry snapshot for a single sensor.
// Measurement fields are pointers so that a missing measurement stays absent
// instead of collapsing to zero.
type SensorReading struct {
	SensorID    string    `json:"sensor_id"`
	Moisture    *float64  `json:"moisture,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Light       *float64  `json:"light,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SetMeasurement assigns a named measurement value. Returns false for an
// unknown measurement name.
func (r *SensorReading) SetMeasurement(name string, value float64) bool {
	switch name {
	case "moisture":
		r.Moisture = &value
	case "temperature":
		r.Temperature = &value
	case "humidity":
		r.Humidity = &value
	case "light":
		r.Light = &value
	default:
		return false
	}
	return true
}
