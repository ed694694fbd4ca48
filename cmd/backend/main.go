package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrinode/irrigation-backend/internal/model"
	"github.com/agrinode/irrigation-backend/internal/services/history"
	"github.com/agrinode/irrigation-backend/internal/services/irrigation"
	"github.com/agrinode/irrigation-backend/internal/services/stream"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
	"github.com/agrinode/irrigation-backend/pkg/mqtt"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mqtt.NewConn(ctx, &mqtt.Config{
		Host:     cfg.MQTTHost,
		Port:     cfg.MQTTPort,
		User:     cfg.MQTTUser,
		Password: cfg.MQTTPassword,
		ClientID: cfg.MQTTClientID,
	})
	if err != nil {
		log.Fatalf("mqtt: %v", err)
	}
	publisher := mqtt.NewPublisher(client)
	defer publisher.Close()

	// History is optional. A nil writer drops everything it receives.
	var writer *history.Writer
	var query *history.Query
	if cfg.InfluxURL != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		writer = history.NewWriter(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket))
		query = history.NewQuery(influx, cfg.InfluxOrg, cfg.InfluxBucket)
		log.Printf("history: influx sink enabled (%s)", cfg.InfluxURL)
	}

	cache := telemetry.NewCache()
	updates := make(chan telemetry.Broadcast, 256)

	// QoS 1 so readings survive a flaky link; the bridge suppresses the
	// resulting broker redeliveries by topic and packet id.
	consumer := mqtt.NewConsumer(client, cfg.SensorTopic, 1, nil)
	bridge := telemetry.NewBridge(consumer, cache, updates, writer.WriteReading)

	registerer := prometheus.NewRegistry()
	metrics := stream.NewMetrics(registerer)
	viewers := stream.NewRegistry(metrics)
	broadcaster := stream.NewBroadcaster(viewers, updates, cfg.RateLimitInterval, cfg.HeartbeatInterval, metrics)
	streamServer := stream.NewServer(viewers, cache)

	zones := irrigation.NewRegistry(writer.WriteEvent)
	gate := irrigation.NewGate(cache, irrigation.GateConfig{
		DailyCapMinutes:             cfg.DailyCapMinutes,
		SaturationThreshold:         cfg.SaturationThreshold,
		FailClosedOnMissingMoisture: cfg.FailClosedMoisture,
	})
	dispatcher := irrigation.NewDispatcher(zones, gate, publisher, irrigation.DispatcherConfig{})
	schedules := irrigation.NewScheduleStore()
	irrigationAPI := irrigation.NewAPI(dispatcher, zones, schedules, cache)

	go bridge.Start(ctx)
	go broadcaster.Run(ctx)
	go dispatcher.RunDailyReset(ctx)

	mux := http.NewServeMux()
	irrigationAPI.Register(mux)
	mux.HandleFunc("GET /ws/sensors", streamServer.HandleSensors)
	mux.HandleFunc("GET /ws/stats", streamServer.HandleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	if query != nil {
		mux.HandleFunc("GET /irrigations/recent", query.HandleRecent)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if writer != nil && writer.LastErrorAge() < 30*time.Second {
			http.Error(w, "influx writes failing", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /zones", func(w http.ResponseWriter, _ *http.Request) {
		zonesOut := make([]model.ZoneInfo, 0, len(model.Zones))
		for _, id := range model.ValidZoneIDs() {
			zonesOut = append(zonesOut, model.Zones[id])
		}
		writeJSON(w, zonesOut)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Printf("http: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
