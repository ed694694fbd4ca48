package messages

import (
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
)

// Viewer protocol message types. Every frame carries {type, timestamp, ...}.
const (
	TypeConnect   = "connect"
	TypeSummary   = "summary"
	TypeUpdate    = "update"
	TypeHeartbeat = "heartbeat"
	TypeError     = "error"
)

// ScopeGlobal marks a connection subscribed to every sensor.
const ScopeGlobal = "global"

type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type ConnectMessage struct {
	Envelope
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"` // "global" or a sensor id
}

// SummaryMessage carries the current telemetry snapshot, sent once on
// global-scope connect before any live update.
type SummaryMessage struct {
	Envelope
	Sensors []model.SensorReading `json:"sensors"`
}

type UpdateMessage struct {
	Envelope
	Data model.SensorReading `json:"data"`
}

type HeartbeatMessage struct {
	Envelope
}

type ErrorMessage struct {
	Envelope
	Error string `json:"error"`
	Code  string `json:"code"`
}

func stamp() Envelope {
	return Envelope{Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func NewConnect(clientID, scope string) ConnectMessage {
	m := ConnectMessage{Envelope: stamp(), ClientID: clientID, Scope: scope}
	m.Type = TypeConnect
	return m
}

func NewSummary(sensors []model.SensorReading) SummaryMessage {
	m := SummaryMessage{Envelope: stamp(), Sensors: sensors}
	m.Type = TypeSummary
	return m
}

func NewUpdate(reading model.SensorReading) UpdateMessage {
	m := UpdateMessage{Envelope: stamp(), Data: reading}
	m.Type = TypeUpdate
	return m
}

func NewHeartbeat() HeartbeatMessage {
	m := HeartbeatMessage{Envelope: stamp()}
	m.Type = TypeHeartbeat
	return m
}

func NewError(code, msg string) ErrorMessage {
	m := ErrorMessage{Envelope: stamp(), Error: msg, Code: code}
	m.Type = TypeError
	return m
}
