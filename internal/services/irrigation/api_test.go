package irrigation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
)

func newTestAPI(t *testing.T) (*API, *telemetry.Cache, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	cache := telemetry.NewCache()
	registry := NewRegistry(nil)
	gate := NewGate(cache, DefaultGateConfig())
	dispatcher := NewDispatcher(registry, gate, pub, DispatcherConfig{})
	return NewAPI(dispatcher, registry, NewScheduleStore(), cache), cache, pub
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTriggerEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/irrigation/trigger",
		`{"zone_id":1,"duration_minutes":30,"user_id":"op"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "Orchard A", res.ZoneName)

	// Same zone again conflicts.
	rec = doJSON(t, mux, http.MethodPost, "/irrigation/trigger",
		`{"zone_id":1,"duration_minutes":30}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var rej Rejection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rej))
	assert.Equal(t, CodeZoneActive, rej.Code)
}

func TestTriggerEndpointValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	for name, body := range map[string]string{
		"zero duration": `{"zone_id":1,"duration_minutes":0}`,
		"over max":      `{"zone_id":1,"duration_minutes":500}`,
		"bad json":      `{"zone_id":`,
		"bad origin":    `{"zone_id":1,"duration_minutes":10,"trigger_type":"cron"}`,
	} {
		rec := doJSON(t, mux, http.MethodPost, "/irrigation/trigger", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}

	rec := doJSON(t, mux, http.MethodPost, "/irrigation/trigger",
		`{"zone_id":42,"duration_minutes":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoistureBlockReturnsConflict(t *testing.T) {
	api, cache, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	putMoisture(cache, "V2", 95)
	rec := doJSON(t, mux, http.MethodPost, "/irrigation/trigger",
		`{"zone_id":2,"duration_minutes":10}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var rej Rejection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rej))
	assert.Equal(t, CodeMoistureHigh, rej.Code)
}

func TestStatusEndpoint(t *testing.T) {
	api, cache, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	putMoisture(cache, "V1", 55)
	rec := doJSON(t, mux, http.MethodPost, "/irrigation/trigger",
		`{"zone_id":1,"duration_minutes":30}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/irrigation/status?zone=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st ZoneStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.IsActive)
	require.NotNil(t, st.MoistureLevel)
	assert.Equal(t, 55.0, *st.MoistureLevel)

	rec = doJSON(t, mux, http.MethodGet, "/irrigation/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Zones       []ZoneStatus `json:"zones"`
		ActiveCount int          `json:"active_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Zones, len(model.Zones))
	assert.Equal(t, 1, all.ActiveCount)

	rec = doJSON(t, mux, http.MethodGet, "/irrigation/status?zone=42", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopEndpoints(t *testing.T) {
	api, _, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/irrigation/stop", `{"zone_id":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	doJSON(t, mux, http.MethodPost, "/irrigation/trigger", `{"zone_id":1,"duration_minutes":30}`)
	doJSON(t, mux, http.MethodPost, "/irrigation/trigger", `{"zone_id":2,"duration_minutes":30}`)

	rec = doJSON(t, mux, http.MethodPost, "/irrigation/stop", `{"zone_id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/irrigation/stop-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res StopAllResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, []int{2}, res.StoppedZones)
}

func TestHistoryEndpoint(t *testing.T) {
	api, _, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	doJSON(t, mux, http.MethodPost, "/irrigation/trigger", `{"zone_id":1,"duration_minutes":30}`)
	doJSON(t, mux, http.MethodPost, "/irrigation/stop", `{"zone_id":1}`)
	doJSON(t, mux, http.MethodPost, "/irrigation/trigger", `{"zone_id":2,"duration_minutes":30}`)

	rec := doJSON(t, mux, http.MethodGet, "/irrigation/history?zone=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Events []model.IrrigationEvent `json:"events"`
		Total  int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Events, 1)
	assert.Equal(t, model.StatusStopped, page.Events[0].Status)
}

func TestScheduleEndpoints(t *testing.T) {
	api, _, _ := newTestAPI(t)
	mux := http.NewServeMux()
	api.Register(mux)

	at := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC).Format(time.RFC3339)
	rec := doJSON(t, mux, http.MethodPost, "/irrigation/schedules",
		`{"zone_id":1,"schedule_time":"`+at+`","duration_minutes":30,"repeat_pattern":"daily","user_id":"op"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry model.ScheduleEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, int64(1), entry.ID)

	rec = doJSON(t, mux, http.MethodPost, "/irrigation/schedules",
		`{"zone_id":1,"schedule_time":"tomorrow","duration_minutes":30}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPatch, "/irrigation/schedules/1", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.False(t, entry.Active)

	rec = doJSON(t, mux, http.MethodPatch, "/irrigation/schedules/42", `{"is_active":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/irrigation/schedules?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Schedules []model.ScheduleEntry `json:"schedules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Schedules)
}
