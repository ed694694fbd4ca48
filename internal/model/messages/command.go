package messages

import "fmt"

const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// IrrigationCommand is the payload published on a zone's command topic.
// Duration is minutes and only present for start commands.
type IrrigationCommand struct {
	Action   string `json:"action"`
	Duration int    `json:"duration,omitempty"`
}

// CommandTopic returns the MQTT topic a zone's actuator listens on.
func CommandTopic(zoneID int) string {
	return fmt.Sprintf("irrigation/control/%d", zoneID)
}
