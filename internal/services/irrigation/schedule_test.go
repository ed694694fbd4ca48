package irrigation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinode/irrigation-backend/internal/model"
)

func TestScheduleCreateAndList(t *testing.T) {
	s := NewScheduleStore()
	at := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

	entry, rej := s.Create(1, at, 30, model.RepeatDaily, "op")
	require.Nil(t, rej)
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, "Orchard A", entry.ZoneName)
	assert.True(t, entry.Active)
	assert.Equal(t, model.RepeatDaily, entry.Repeat)

	_, rej = s.Create(99, at, 30, model.RepeatDaily, "op")
	require.NotNil(t, rej)
	assert.Equal(t, CodeZoneInvalid, rej.Code)

	// Empty repeat defaults to none.
	entry, rej = s.Create(2, at, 20, "", "op")
	require.Nil(t, rej)
	assert.Equal(t, model.RepeatNone, entry.Repeat)
	assert.Equal(t, int64(2), entry.ID)

	assert.Len(t, s.List(nil, false), 2)

	zone := 1
	list := s.List(&zone, false)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ZoneID)
}

func TestScheduleUpdate(t *testing.T) {
	s := NewScheduleStore()
	at := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

	entry, rej := s.Create(1, at, 30, model.RepeatDaily, "op")
	require.Nil(t, rej)

	inactive := false
	duration := 45
	updated, err := s.Update(entry.ID, SchedulePatch{DurationMinutes: &duration, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.DurationMinutes)
	assert.False(t, updated.Active)
	// Untouched fields survive the patch.
	assert.Equal(t, at, updated.ScheduleTime)
	assert.Equal(t, model.RepeatDaily, updated.Repeat)

	assert.Empty(t, s.List(nil, true))

	_, err = s.Update(42, SchedulePatch{Active: &inactive})
	assert.Error(t, err)
}
