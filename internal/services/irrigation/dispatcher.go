package irrigation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/model/messages"
	"github.com/agrinode/irrigation-backend/pkg/mqtt"
)

// commandQoS: commands must survive a flaky actuator link better than
// telemetry, so publish at-least-once.
const commandQoS byte = 1

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	// MinuteUnit is the real duration of one requested minute. Production
	// uses time.Minute; tests and simulation shrink it.
	MinuteUnit time.Duration
}

// Dispatcher turns gate approvals into zone transitions, actuator commands
// and auto-stop timers.
type Dispatcher struct {
	registry  *Registry
	gate      *Gate
	publisher mqtt.IPublisher
	minute    time.Duration

	mu     sync.Mutex
	timers map[int]*time.Timer
}

func NewDispatcher(registry *Registry, gate *Gate, publisher mqtt.IPublisher, cfg DispatcherConfig) *Dispatcher {
	minute := cfg.MinuteUnit
	if minute <= 0 {
		minute = time.Minute
	}
	return &Dispatcher{
		registry:  registry,
		gate:      gate,
		publisher: publisher,
		minute:    minute,
		timers:    make(map[int]*time.Timer),
	}
}

// TriggerResult reports a started run. CommandPublished is reported alongside
// the state change: a publish failure does not roll the transition back.
type TriggerResult struct {
	Success          bool                   `json:"success"`
	EventID          int64                  `json:"event_id"`
	ZoneID           int                    `json:"zone_id"`
	ZoneName         string                 `json:"zone_name"`
	DurationMinutes  int                    `json:"duration_minutes"`
	Status           model.IrrigationStatus `json:"status"`
	CommandPublished bool                   `json:"command_published"`
	Message          string                 `json:"message"`
}

// Trigger runs the safety gate and, on approval, commits the zone transition,
// publishes the start command and arms the auto-stop timer.
func (d *Dispatcher) Trigger(zoneID, durationMinutes int, origin model.TriggerOrigin, requestedBy string) (TriggerResult, *Rejection) {
	ev, rej := d.registry.Begin(zoneID, durationMinutes, origin, requestedBy, d.gate.Preflight(zoneID, durationMinutes))
	if rej != nil {
		return TriggerResult{}, rej
	}

	published := d.publishCommand(zoneID, messages.IrrigationCommand{
		Action:   messages.ActionStart,
		Duration: durationMinutes,
	})

	d.armTimer(zoneID, ev.ID, durationMinutes)

	return TriggerResult{
		Success:          true,
		EventID:          ev.ID,
		ZoneID:           zoneID,
		ZoneName:         ev.ZoneName,
		DurationMinutes:  durationMinutes,
		Status:           model.StatusRunning,
		CommandPublished: published,
		Message:          fmt.Sprintf("Irrigation started for zone %d (%s).", zoneID, ev.ZoneName),
	}, nil
}

// StopResult reports a manual or emergency stop of one zone.
type StopResult struct {
	Success          bool                   `json:"success"`
	ZoneID           int                    `json:"zone_id"`
	ZoneName         string                 `json:"zone_name"`
	ActualMinutes    int                    `json:"actual_duration_minutes"`
	Status           model.IrrigationStatus `json:"status"`
	CommandPublished bool                   `json:"command_published"`
	Message          string                 `json:"message"`
}

// Stop ends one zone's run, cancels its timer and publishes the stop
// command. Stopping an idle zone is rejected with ZONE_NOT_ACTIVE.
func (d *Dispatcher) Stop(zoneID int) (StopResult, *Rejection) {
	if !model.ValidZone(zoneID) {
		return StopResult{}, rejectZoneInvalid(zoneID)
	}

	d.cancelTimer(zoneID)

	ev, ok := d.registry.End(zoneID, model.StatusStopped)
	if !ok {
		return StopResult{}, rejectZoneNotActive(zoneID)
	}

	published := d.publishCommand(zoneID, messages.IrrigationCommand{Action: messages.ActionStop})

	actual := 0
	if ev.ActualMinutes != nil {
		actual = *ev.ActualMinutes
	}
	return StopResult{
		Success:          true,
		ZoneID:           zoneID,
		ZoneName:         ev.ZoneName,
		ActualMinutes:    actual,
		Status:           model.StatusStopped,
		CommandPublished: published,
		Message:          fmt.Sprintf("Irrigation stopped for zone %d.", zoneID),
	}, nil
}

// StopFailure names why one zone could not be transitioned during an
// emergency stop.
type StopFailure struct {
	ZoneID int    `json:"zone_id"`
	Reason string `json:"reason"`
}

// StopAllResult collects per-zone outcomes so one zone's failure cannot hide
// the others.
type StopAllResult struct {
	Success          bool          `json:"success"`
	StoppedZones     []int         `json:"stopped_zones"`
	FailedZones      []StopFailure `json:"failed_zones"`
	CommandPublished bool          `json:"command_published"`
	Message          string        `json:"message"`
}

// StopAll is the emergency stop: every active zone is ended and commanded
// off, then a stop is additionally published to every configured zone as a
// safety measure against state drift on the devices.
func (d *Dispatcher) StopAll() StopAllResult {
	res := StopAllResult{StoppedZones: []int{}, FailedZones: []StopFailure{}, CommandPublished: true}

	for _, zoneID := range d.registry.ActiveZones() {
		d.cancelTimer(zoneID)
		if _, ok := d.registry.End(zoneID, model.StatusStopped); !ok {
			// Lost the race against the auto-stop timer; the zone is off
			// either way.
			res.FailedZones = append(res.FailedZones, StopFailure{ZoneID: zoneID, Reason: "already ended"})
			continue
		}
		res.StoppedZones = append(res.StoppedZones, zoneID)
		if !d.publishCommand(zoneID, messages.IrrigationCommand{Action: messages.ActionStop}) {
			res.CommandPublished = false
		}
	}

	for _, zoneID := range model.ValidZoneIDs() {
		if !d.publishCommand(zoneID, messages.IrrigationCommand{Action: messages.ActionStop}) {
			res.CommandPublished = false
		}
	}

	res.Success = len(res.FailedZones) == 0
	res.Message = fmt.Sprintf("Emergency stop executed. Stopped %d zones.", len(res.StoppedZones))
	log.Printf("dispatcher: emergency stop, zones=%v publish_ok=%v", res.StoppedZones, res.CommandPublished)
	return res
}

func (d *Dispatcher) armTimer(zoneID int, eventID int64, durationMinutes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[zoneID]; ok {
		t.Stop()
	}
	d.timers[zoneID] = time.AfterFunc(time.Duration(durationMinutes)*d.minute, func() {
		d.autoStop(zoneID, eventID)
	})
}

func (d *Dispatcher) cancelTimer(zoneID int) {
	d.mu.Lock()
	if t, ok := d.timers[zoneID]; ok {
		t.Stop()
		delete(d.timers, zoneID)
	}
	d.mu.Unlock()
}

// autoStop fires when the planned duration elapses. EndRun only closes the
// run the timer was armed for, so a timer that outlived its run (cancelled in
// the gap before arming, or racing a manual stop) is a no-op even when a
// later run is active. The timers map is left alone here: a fired timer is
// inert and the next armTimer for the zone overwrites it.
func (d *Dispatcher) autoStop(zoneID int, eventID int64) {
	if _, ok := d.registry.EndRun(zoneID, eventID, model.StatusCompleted); !ok {
		return
	}
	d.publishCommand(zoneID, messages.IrrigationCommand{Action: messages.ActionStop})
	log.Printf("dispatcher: zone %d completed planned duration (event %d)", zoneID, eventID)
}

// publishCommand reports the outcome instead of failing the caller: the zone
// registry is the authority this system trusts, device compliance is outside
// its guarantee.
func (d *Dispatcher) publishCommand(zoneID int, cmd messages.IrrigationCommand) bool {
	payload, err := json.Marshal(cmd)
	if err != nil {
		log.Printf("dispatcher: marshal command for zone %d: %v", zoneID, err)
		return false
	}
	if err := d.publisher.Publish(messages.CommandTopic(zoneID), commandQoS, payload); err != nil {
		log.Printf("dispatcher: publish %s to zone %d failed: %v", cmd.Action, zoneID, err)
		return false
	}
	log.Printf("dispatcher: published %s to %s", cmd.Action, messages.CommandTopic(zoneID))
	return true
}

// RunDailyReset resets the zone accumulation counters at every UTC midnight
// until ctx is cancelled.
func (d *Dispatcher) RunDailyReset(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.registry.ResetDailyCounters()
		}
	}
}
