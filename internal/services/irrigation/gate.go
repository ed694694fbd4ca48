package irrigation

import (
	"fmt"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
)

// Rejection reason codes. Safety rejections are expected outcomes surfaced
// verbatim to the caller, never system errors.
const (
	CodeZoneInvalid   = "ZONE_INVALID"
	CodeZoneActive    = "ZONE_ACTIVE"
	CodeZoneNotActive = "ZONE_NOT_ACTIVE"
	CodeDailyLimit    = "DAILY_LIMIT_EXCEEDED"
	CodeMoistureHigh  = "MOISTURE_TOO_HIGH"
	// CodeMoistureUnknown is only produced when the gate is configured
	// fail-closed on missing moisture data.
	CodeMoistureUnknown = "MOISTURE_UNKNOWN"
)

// Rejection is a named, machine-readable refusal with a human message.
type Rejection struct {
	Code    string         `json:"error_code"`
	Message string         `json:"message"`
	ZoneID  int            `json:"zone_id"`
	Details map[string]any `json:"details,omitempty"`
}

func rejectZoneInvalid(zoneID int) *Rejection {
	return &Rejection{
		Code:    CodeZoneInvalid,
		Message: fmt.Sprintf("Invalid zone_id %d. Valid zones are %v.", zoneID, model.ValidZoneIDs()),
		ZoneID:  zoneID,
	}
}

func rejectZoneActive(zoneID, elapsedMinutes int) *Rejection {
	return &Rejection{
		Code:    CodeZoneActive,
		Message: fmt.Sprintf("Zone %d already active for %d minutes.", zoneID, elapsedMinutes),
		ZoneID:  zoneID,
	}
}

func rejectZoneNotActive(zoneID int) *Rejection {
	return &Rejection{
		Code:    CodeZoneNotActive,
		Message: fmt.Sprintf("Zone %d is not currently irrigating.", zoneID),
		ZoneID:  zoneID,
	}
}

// GateConfig carries the safety thresholds.
type GateConfig struct {
	DailyCapMinutes     int
	SaturationThreshold float64
	// FailClosedOnMissingMoisture rejects when no moisture reading exists
	// for the zone. Default false: proceed as if the check passed.
	FailClosedOnMissingMoisture bool
}

func DefaultGateConfig() GateConfig {
	return GateConfig{
		DailyCapMinutes:     model.DefaultDailyCapMinutes,
		SaturationThreshold: model.DefaultSaturationThreshold,
	}
}

// Gate validates irrigation requests against the zone registry's accumulation
// and the telemetry cache. It never mutates state itself: its preflight runs
// inside the registry's per-zone critical section and the registry commits.
type Gate struct {
	cache *telemetry.Cache
	cfg   GateConfig
}

func NewGate(cache *telemetry.Cache, cfg GateConfig) *Gate {
	if cfg.DailyCapMinutes <= 0 {
		cfg.DailyCapMinutes = model.DefaultDailyCapMinutes
	}
	if cfg.SaturationThreshold <= 0 {
		cfg.SaturationThreshold = model.DefaultSaturationThreshold
	}
	return &Gate{cache: cache, cfg: cfg}
}

// Preflight returns the check closure the registry evaluates before
// committing a run. Checks run in order and short-circuit: daily cap, then
// saturation risk.
func (g *Gate) Preflight(zoneID, durationMinutes int) Preflight {
	return func(accumulatedToday int) *Rejection {
		if accumulatedToday+durationMinutes > g.cfg.DailyCapMinutes {
			remaining := g.cfg.DailyCapMinutes - accumulatedToday
			if remaining < 0 {
				remaining = 0
			}
			return &Rejection{
				Code: CodeDailyLimit,
				Message: fmt.Sprintf(
					"Zone %d would exceed the daily limit: %d minutes irrigated today, max %d, remaining %d.",
					zoneID, accumulatedToday, g.cfg.DailyCapMinutes, remaining),
				ZoneID: zoneID,
				Details: map[string]any{
					"daily_total": accumulatedToday,
					"max_allowed": g.cfg.DailyCapMinutes,
				},
			}
		}

		moisture, ok := g.cache.Moisture(model.ZoneSensorID(zoneID))
		if !ok {
			if g.cfg.FailClosedOnMissingMoisture {
				return &Rejection{
					Code:    CodeMoistureUnknown,
					Message: fmt.Sprintf("No moisture reading available for zone %d.", zoneID),
					ZoneID:  zoneID,
				}
			}
			// No reading: fail open, the cap check above still bounds the run.
			return nil
		}
		if moisture > g.cfg.SaturationThreshold {
			return &Rejection{
				Code: CodeMoistureHigh,
				Message: fmt.Sprintf(
					"Zone %d soil moisture is %.1f%% (threshold %.1f%%). Irrigation blocked to prevent saturation.",
					zoneID, moisture, g.cfg.SaturationThreshold),
				ZoneID: zoneID,
				Details: map[string]any{
					"current_moisture": moisture,
					"threshold":        g.cfg.SaturationThreshold,
				},
			}
		}
		return nil
	}
}
