package irrigation

import (
	"fmt"
	"sync"
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
)

// ScheduleStore is the in-memory store of operator-created schedules. The
// trigger-evaluation loop that consumes them runs elsewhere.
type ScheduleStore struct {
	mu      sync.Mutex
	entries []*model.ScheduleEntry
	nextID  int64
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{nextID: 1}
}

func (s *ScheduleStore) Create(zoneID int, at time.Time, durationMinutes int, repeat model.RepeatPattern, requestedBy string) (model.ScheduleEntry, *Rejection) {
	if !model.ValidZone(zoneID) {
		return model.ScheduleEntry{}, rejectZoneInvalid(zoneID)
	}
	if repeat == "" {
		repeat = model.RepeatNone
	}

	now := time.Now().UTC()
	s.mu.Lock()
	entry := &model.ScheduleEntry{
		ID:              s.nextID,
		ZoneID:          zoneID,
		ZoneName:        model.ZoneName(zoneID),
		ScheduleTime:    at,
		DurationMinutes: durationMinutes,
		Repeat:          repeat,
		RequestedBy:     requestedBy,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.nextID++
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	return *entry, nil
}

// SchedulePatch carries the mutable schedule fields; nil means unchanged.
type SchedulePatch struct {
	ScheduleTime    *time.Time
	DurationMinutes *int
	Repeat          *model.RepeatPattern
	Active          *bool
}

func (s *ScheduleStore) Update(id int64, patch SchedulePatch) (model.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID != id {
			continue
		}
		if patch.ScheduleTime != nil {
			e.ScheduleTime = *patch.ScheduleTime
		}
		if patch.DurationMinutes != nil {
			e.DurationMinutes = *patch.DurationMinutes
		}
		if patch.Repeat != nil {
			e.Repeat = *patch.Repeat
		}
		if patch.Active != nil {
			e.Active = *patch.Active
		}
		e.UpdatedAt = time.Now().UTC()
		return *e, nil
	}
	return model.ScheduleEntry{}, fmt.Errorf("schedule %d not found", id)
}

func (s *ScheduleStore) List(zoneID *int, activeOnly bool) []model.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ScheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if zoneID != nil && e.ZoneID != *zoneID {
			continue
		}
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, *e)
	}
	return out
}
