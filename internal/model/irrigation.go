package model

import "time"

// IrrigationStatus is the lifecycle state of an irrigation event.
type IrrigationStatus string

const (
	StatusRunning   IrrigationStatus = "running"
	StatusCompleted IrrigationStatus = "completed"
	StatusStopped   IrrigationStatus = "stopped"
	StatusFailed    IrrigationStatus = "failed"
)

// TriggerOrigin records how a run was requested.
type TriggerOrigin string

const (
	TriggerManual    TriggerOrigin = "manual"
	TriggerScheduled TriggerOrigin = "scheduled"
	TriggerAutomated TriggerOrigin = "automated"
)

// RepeatPattern for schedule entries.
type RepeatPattern string

const (
	RepeatDaily  RepeatPattern = "daily"
	RepeatWeekly RepeatPattern = "weekly"
	RepeatNone   RepeatPattern = "none"
)

// IrrigationEvent is the append-only record of one run. It is created when
// the run starts and immutable once a terminal status is recorded.
type IrrigationEvent struct {
	ID              int64            `json:"id"`
	ZoneID          int              `json:"zone_id"`
	ZoneName        string           `json:"zone_name"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	ActualMinutes   *int             `json:"actual_duration_minutes,omitempty"`
	Origin          TriggerOrigin    `json:"trigger_type"`
	RequestedBy     string           `json:"user_id"`
	Status          IrrigationStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Closed reports whether the event has reached a terminal status.
func (e *IrrigationEvent) Closed() bool {
	return e.Status != StatusRunning
}

// ScheduleEntry is an operator-created irrigation schedule. The execution
// loop that consumes entries lives outside this backend.
type ScheduleEntry struct {
	ID              int64         `json:"id"`
	ZoneID          int           `json:"zone_id"`
	ZoneName        string        `json:"zone_name"`
	ScheduleTime    time.Time     `json:"schedule_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Repeat          RepeatPattern `json:"repeat_pattern"`
	RequestedBy     string        `json:"user_id"`
	Active          bool          `json:"is_active"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
