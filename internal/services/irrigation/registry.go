package irrigation

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
)

// activeRun tracks the in-flight run for one zone.
type activeRun struct {
	eventID     int64
	start       time.Time
	duration    int // planned minutes
	origin      model.TriggerOrigin
	requestedBy string
}

// zoneState carries one zone's mutable state. Its mutex serializes every
// mutation for that zone; different zones proceed in parallel.
type zoneState struct {
	mu          sync.Mutex
	active      *activeRun
	accumulated int // minutes irrigated today, credited when runs end
}

// Preflight is evaluated inside the zone critical section, after the
// conflict check and before the state mutation, so gate-check and commit are
// one transaction.
type Preflight func(accumulatedToday int) *Rejection

// Registry is the single source of truth for zone activity.
type Registry struct {
	zones map[int]*zoneState

	mu     sync.Mutex // guards events and nextID
	events []*model.IrrigationEvent
	nextID int64

	closedSink func(model.IrrigationEvent) // optional history hook
}

func NewRegistry(closedSink func(model.IrrigationEvent)) *Registry {
	r := &Registry{
		zones:      make(map[int]*zoneState, len(model.Zones)),
		nextID:     1,
		closedSink: closedSink,
	}
	for id := range model.Zones {
		r.zones[id] = &zoneState{}
	}
	return r
}

// Begin transitions a zone from idle to running. It mutates nothing on
// rejection. Concurrent Begin calls for the same zone cannot both succeed.
func (r *Registry) Begin(zoneID, durationMinutes int, origin model.TriggerOrigin, requestedBy string, pre Preflight) (model.IrrigationEvent, *Rejection) {
	z, ok := r.zones[zoneID]
	if !ok {
		return model.IrrigationEvent{}, rejectZoneInvalid(zoneID)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if z.active != nil {
		elapsed := int(time.Since(z.active.start).Minutes())
		return model.IrrigationEvent{}, rejectZoneActive(zoneID, elapsed)
	}
	if pre != nil {
		if rej := pre(z.accumulated); rej != nil {
			return model.IrrigationEvent{}, rej
		}
	}

	now := time.Now().UTC()
	ev := &model.IrrigationEvent{
		ZoneID:          zoneID,
		ZoneName:        model.ZoneName(zoneID),
		StartTime:       now,
		DurationMinutes: durationMinutes,
		Origin:          origin,
		RequestedBy:     requestedBy,
		Status:          model.StatusRunning,
		CreatedAt:       now,
	}

	r.mu.Lock()
	ev.ID = r.nextID
	r.nextID++
	r.events = append(r.events, ev)
	r.mu.Unlock()

	z.active = &activeRun{
		eventID:     ev.ID,
		start:       now,
		duration:    durationMinutes,
		origin:      origin,
		requestedBy: requestedBy,
	}

	log.Printf("zones: started zone %d (%s) for %d min (event %d, origin=%s)",
		zoneID, ev.ZoneName, durationMinutes, ev.ID, origin)
	return *ev, nil
}

// End records the terminal transition for a zone's active run. It is
// idempotent: when the zone is not running (duplicate stop, timer racing a
// manual stop) it returns false and changes nothing, so exactly one terminal
// status is ever recorded per event.
func (r *Registry) End(zoneID int, status model.IrrigationStatus) (model.IrrigationEvent, bool) {
	return r.end(zoneID, 0, status)
}

// EndRun is End restricted to one run: it closes the zone's active run only
// when that run is the event identified by eventID. Timers use it so a timer
// armed for a finished run can never close a later one.
func (r *Registry) EndRun(zoneID int, eventID int64, status model.IrrigationStatus) (model.IrrigationEvent, bool) {
	return r.end(zoneID, eventID, status)
}

func (r *Registry) end(zoneID int, eventID int64, status model.IrrigationStatus) (model.IrrigationEvent, bool) {
	z, ok := r.zones[zoneID]
	if !ok {
		return model.IrrigationEvent{}, false
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	if z.active == nil {
		return model.IrrigationEvent{}, false
	}
	if eventID != 0 && z.active.eventID != eventID {
		return model.IrrigationEvent{}, false
	}

	now := time.Now().UTC()
	actual := int(now.Sub(z.active.start).Minutes())
	z.accumulated += actual

	var closed model.IrrigationEvent
	r.mu.Lock()
	for _, ev := range r.events {
		if ev.ID == z.active.eventID {
			ev.EndTime = &now
			ev.ActualMinutes = &actual
			ev.Status = status
			closed = *ev
			break
		}
	}
	r.mu.Unlock()

	z.active = nil

	log.Printf("zones: ended zone %d after %d min (event %d, status=%s)",
		zoneID, actual, closed.ID, status)
	if r.closedSink != nil {
		r.closedSink(closed)
	}
	return closed, true
}

func (r *Registry) IsActive(zoneID int) bool {
	z, ok := r.zones[zoneID]
	if !ok {
		return false
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.active != nil
}

// AccumulatedToday returns minutes irrigated today, including the elapsed
// portion of a still-running run.
func (r *Registry) AccumulatedToday(zoneID int) int {
	z, ok := r.zones[zoneID]
	if !ok {
		return 0
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	total := z.accumulated
	if z.active != nil {
		total += int(time.Since(z.active.start).Minutes())
	}
	return total
}

// ActiveZones returns the ids of currently running zones in ascending order.
func (r *Registry) ActiveZones() []int {
	var out []int
	for id, z := range r.zones {
		z.mu.Lock()
		if z.active != nil {
			out = append(out, id)
		}
		z.mu.Unlock()
	}
	sort.Ints(out)
	return out
}

// ResetDailyCounters zeroes the per-zone accumulation. Invoked once per UTC
// day boundary.
func (r *Registry) ResetDailyCounters() {
	for _, z := range r.zones {
		z.mu.Lock()
		z.accumulated = 0
		z.mu.Unlock()
	}
	log.Printf("zones: daily irrigation counters reset")
}

// ZoneStatus is the per-zone view served by the status query. Moisture is
// filled in by the caller from the telemetry cache.
type ZoneStatus struct {
	ZoneID           int        `json:"zone_id"`
	ZoneName         string     `json:"zone_name"`
	ZoneType         string     `json:"zone_type"`
	IsActive         bool       `json:"is_active"`
	ElapsedMinutes   *int       `json:"current_duration_minutes,omitempty"`
	RemainingMinutes *int       `json:"remaining_minutes,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	MoistureLevel    *float64   `json:"moisture_level,omitempty"`
	DailyMinutes     int        `json:"daily_irrigation_minutes"`
}

func (r *Registry) Status(zoneID int) (ZoneStatus, bool) {
	info, ok := model.Zones[zoneID]
	if !ok {
		return ZoneStatus{}, false
	}
	z := r.zones[zoneID]

	z.mu.Lock()
	defer z.mu.Unlock()

	st := ZoneStatus{
		ZoneID:       zoneID,
		ZoneName:     info.Name,
		ZoneType:     info.Type,
		DailyMinutes: z.accumulated,
	}
	if z.active != nil {
		st.IsActive = true
		elapsed := int(time.Since(z.active.start).Minutes())
		remaining := z.active.duration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		start := z.active.start
		st.ElapsedMinutes = &elapsed
		st.RemainingMinutes = &remaining
		st.StartedAt = &start
		st.DailyMinutes += elapsed
	}
	return st, true
}

// History returns closed and running events, newest first, paginated.
func (r *Registry) History(zoneID *int, page, pageSize int) ([]model.IrrigationEvent, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	r.mu.Lock()
	filtered := make([]model.IrrigationEvent, 0, len(r.events))
	for _, ev := range r.events {
		if zoneID != nil && ev.ZoneID != *zoneID {
			continue
		}
		filtered = append(filtered, *ev)
	}
	r.mu.Unlock()

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].StartTime.After(filtered[j].StartTime) })

	total := len(filtered)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}
