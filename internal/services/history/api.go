package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/sony/gobreaker"
)

// RecentEvent is one row of the recent-irrigations query.
type RecentEvent struct {
	ZoneID        int    `json:"zone_id"`
	Status        string `json:"status"`
	Origin        string `json:"origin"`
	ActualMinutes int    `json:"actual_duration_minutes"`
	Time          string `json:"time"` // RFC3339
}

type recentQueryParams struct {
	Minutes   int
	Limit     int
	TimeoutMS int
}

func parseRecent(r *http.Request, defMin, defLim, defTOms int) recentQueryParams {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if max > 0 && n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return recentQueryParams{
		Minutes:   get("minutes", defMin, 1, 7*24*60),
		Limit:     get("limit", defLim, 1, 500),
		TimeoutMS: get("timeout_ms", defTOms, 200, 5000),
	}
}

func buildFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == "irrigation_event")
  |> filter(fn: (r) => r._field == "actual_minutes")
  |> keep(columns: ["_time","_value","zone_id","status","origin"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, bucket, minutes, limit)
}

func mkBreaker(name string, fails uint32, openFor, interval time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= fails
		},
	})
}

// Query serves the recent-irrigations endpoint out of Influx. The circuit
// breaker keeps a flapping Influx from stalling every request; while it is
// open the last good result is served instead.
type Query struct {
	influx  influxdb2.Client
	org     string
	bucket  string
	breaker *gobreaker.CircuitBreaker

	mu       sync.Mutex
	lastGood []RecentEvent
}

func NewQuery(influx influxdb2.Client, org, bucket string) *Query {
	return &Query{
		influx:  influx,
		org:     org,
		bucket:  bucket,
		breaker: mkBreaker("influx-history", 3, 10*time.Second, 30*time.Second),
	}
}

// HandleRecent answers GET /irrigations/recent?minutes=1440&limit=20.
func (q *Query) HandleRecent(w http.ResponseWriter, r *http.Request) {
	p := parseRecent(r, 1440, 20, 2000)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(p.TimeoutMS)*time.Millisecond)
	defer cancel()

	res, err := q.breaker.Execute(func() (any, error) {
		return q.fetch(ctx, p.Minutes, p.Limit)
	})

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		q.mu.Lock()
		cached := q.lastGood
		q.mu.Unlock()
		w.Header().Set("X-Degraded", "influx-unavailable")
		if cached == nil {
			cached = []RecentEvent{}
		}
		_ = json.NewEncoder(w).Encode(cached)
		return
	}

	events := res.([]RecentEvent)
	q.mu.Lock()
	q.lastGood = events
	q.mu.Unlock()
	_ = json.NewEncoder(w).Encode(events)
}

func (q *Query) fetch(ctx context.Context, minutes, limit int) ([]RecentEvent, error) {
	res, err := q.influx.QueryAPI(q.org).Query(ctx, buildFlux(q.bucket, minutes, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Close() }()

	out := make([]RecentEvent, 0, limit)
	for res.Next() {
		rec := res.Record()

		var actual int
		switch v := rec.Value().(type) {
		case float64:
			actual = int(v)
		case int64:
			actual = int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				actual = n
			}
		}

		ev := RecentEvent{
			ActualMinutes: actual,
			Time:          rec.Time().UTC().Format(time.RFC3339),
		}
		if v, ok := rec.ValueByKey("zone_id").(string); ok {
			if n, err := strconv.Atoi(v); err == nil {
				ev.ZoneID = n
			}
		}
		if v, ok := rec.ValueByKey("status").(string); ok {
			ev.Status = v
		}
		if v, ok := rec.ValueByKey("origin").(string); ok {
			ev.Origin = v
		}
		out = append(out, ev)
	}
	if res.Err() != nil {
		return nil, res.Err()
	}
	return out, nil
}
