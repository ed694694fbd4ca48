package irrigation

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
)

// API serves the irrigation control endpoints.
type API struct {
	dispatcher *Dispatcher
	registry   *Registry
	schedules  *ScheduleStore
	cache      *telemetry.Cache
}

func NewAPI(dispatcher *Dispatcher, registry *Registry, schedules *ScheduleStore, cache *telemetry.Cache) *API {
	return &API{
		dispatcher: dispatcher,
		registry:   registry,
		schedules:  schedules,
		cache:      cache,
	}
}

// Register mounts the handlers on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /irrigation/trigger", a.handleTrigger)
	mux.HandleFunc("POST /irrigation/stop", a.handleStop)
	mux.HandleFunc("POST /irrigation/stop-all", a.handleStopAll)
	mux.HandleFunc("GET /irrigation/status", a.handleStatus)
	mux.HandleFunc("GET /irrigation/history", a.handleHistory)
	mux.HandleFunc("GET /irrigation/schedules", a.handleListSchedules)
	mux.HandleFunc("POST /irrigation/schedules", a.handleCreateSchedule)
	mux.HandleFunc("PATCH /irrigation/schedules/{id}", a.handleUpdateSchedule)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// rejectionStatus maps safety rejections onto HTTP statuses. Conflicts with
// current state are 409, bad input is 400.
func rejectionStatus(rej *Rejection) int {
	switch rej.Code {
	case CodeZoneActive, CodeZoneNotActive, CodeDailyLimit, CodeMoistureHigh, CodeMoistureUnknown:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

type triggerRequest struct {
	ZoneID          int    `json:"zone_id"`
	DurationMinutes int    `json:"duration_minutes"`
	TriggerType     string `json:"trigger_type"`
	UserID          string `json:"user_id"`
}

func (a *API) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.DurationMinutes < 1 || req.DurationMinutes > model.MaxRunMinutes {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "duration_minutes out of range",
			"min_minutes": 1,
			"max_minutes": model.MaxRunMinutes,
		})
		return
	}

	origin := model.TriggerOrigin(req.TriggerType)
	switch origin {
	case model.TriggerManual, model.TriggerScheduled, model.TriggerAutomated:
	case "":
		origin = model.TriggerManual
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown trigger_type"})
		return
	}

	res, rej := a.dispatcher.Trigger(req.ZoneID, req.DurationMinutes, origin, req.UserID)
	if rej != nil {
		writeJSON(w, rejectionStatus(rej), rej)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type stopRequest struct {
	ZoneID int `json:"zone_id"`
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	res, rej := a.dispatcher.Stop(req.ZoneID)
	if rej != nil {
		writeJSON(w, rejectionStatus(rej), rej)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleStopAll(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.dispatcher.StopAll())
}

// handleStatus serves ?zone=N for one zone or, without the parameter, a
// report over every configured zone. Moisture comes from the telemetry cache.
func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if zq := strings.TrimSpace(r.URL.Query().Get("zone")); zq != "" {
		zoneID, err := strconv.Atoi(zq)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zone must be an integer"})
			return
		}
		st, ok := a.registry.Status(zoneID)
		if !ok {
			writeJSON(w, http.StatusBadRequest, rejectZoneInvalid(zoneID))
			return
		}
		a.fillMoisture(&st)
		writeJSON(w, http.StatusOK, st)
		return
	}

	zones := make([]ZoneStatus, 0, len(model.Zones))
	active := 0
	for _, id := range model.ValidZoneIDs() {
		st, _ := a.registry.Status(id)
		a.fillMoisture(&st)
		if st.IsActive {
			active++
		}
		zones = append(zones, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"zones":        zones,
		"active_count": active,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) fillMoisture(st *ZoneStatus) {
	if m, ok := a.cache.Moisture(model.ZoneSensorID(st.ZoneID)); ok {
		st.MoistureLevel = &m
	}
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var zoneID *int
	if zq := strings.TrimSpace(q.Get("zone")); zq != "" {
		n, err := strconv.Atoi(zq)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zone must be an integer"})
			return
		}
		zoneID = &n
	}
	page := intQuery(q.Get("page"), 1)
	pageSize := intQuery(q.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	events, total := a.registry.History(zoneID, page, pageSize)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":    events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func intQuery(raw string, def int) int {
	if v := strings.TrimSpace(raw); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

type scheduleRequest struct {
	ZoneID          int    `json:"zone_id"`
	ScheduleTime    string `json:"schedule_time"`
	DurationMinutes int    `json:"duration_minutes"`
	RepeatPattern   string `json:"repeat_pattern"`
	UserID          string `json:"user_id"`
}

func (a *API) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.DurationMinutes < 1 || req.DurationMinutes > model.MaxRunMinutes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_minutes out of range"})
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduleTime)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schedule_time must be RFC3339"})
		return
	}
	repeat := model.RepeatPattern(req.RepeatPattern)
	switch repeat {
	case model.RepeatDaily, model.RepeatWeekly, model.RepeatNone, "":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown repeat_pattern"})
		return
	}

	entry, rej := a.schedules.Create(req.ZoneID, at, req.DurationMinutes, repeat, req.UserID)
	if rej != nil {
		writeJSON(w, rejectionStatus(rej), rej)
		return
	}
	log.Printf("schedules: created schedule %d for zone %d", entry.ID, entry.ZoneID)
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var zoneID *int
	if zq := strings.TrimSpace(q.Get("zone")); zq != "" {
		n, err := strconv.Atoi(zq)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zone must be an integer"})
			return
		}
		zoneID = &n
	}
	activeOnly := q.Get("active") == "true"
	writeJSON(w, http.StatusOK, map[string]any{"schedules": a.schedules.List(zoneID, activeOnly)})
}

type schedulePatchRequest struct {
	ScheduleTime    *string `json:"schedule_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	RepeatPattern   *string `json:"repeat_pattern"`
	Active          *bool   `json:"is_active"`
}

func (a *API) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schedule id must be an integer"})
		return
	}
	var req schedulePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	var patch SchedulePatch
	if req.ScheduleTime != nil {
		at, err := time.Parse(time.RFC3339, *req.ScheduleTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schedule_time must be RFC3339"})
			return
		}
		patch.ScheduleTime = &at
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes < 1 || *req.DurationMinutes > model.MaxRunMinutes {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration_minutes out of range"})
			return
		}
		patch.DurationMinutes = req.DurationMinutes
	}
	if req.RepeatPattern != nil {
		repeat := model.RepeatPattern(*req.RepeatPattern)
		switch repeat {
		case model.RepeatDaily, model.RepeatWeekly, model.RepeatNone:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown repeat_pattern"})
			return
		}
		patch.Repeat = &repeat
	}
	patch.Active = req.Active

	entry, err := a.schedules.Update(id, patch)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
