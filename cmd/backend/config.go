package main

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr string

	MQTTHost     string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string
	SensorTopic  string

	RateLimitInterval time.Duration
	HeartbeatInterval time.Duration

	DailyCapMinutes     int
	SaturationThreshold float64
	FailClosedMoisture  bool

	// Influx is optional: with an empty URL the history writer and the
	// recent-irrigations query are disabled.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8000"),

		MQTTHost:     getenv("MQTT_HOST", "localhost"),
		MQTTPort:     getenvInt("MQTT_PORT", 1883),
		MQTTUser:     getenv("MQTT_USER", ""),
		MQTTPassword: getenv("MQTT_PASSWORD", ""),
		MQTTClientID: getenv("MQTT_CLIENT_ID", "irrigation-backend"),
		SensorTopic:  getenv("SENSOR_TOPIC", "sensors/#"),

		RateLimitInterval: time.Duration(getenvInt("RATE_LIMIT_MS", 1000)) * time.Millisecond,
		HeartbeatInterval: time.Duration(getenvInt("HEARTBEAT_SEC", 30)) * time.Second,

		DailyCapMinutes:     getenvInt("DAILY_CAP_MINUTES", 120),
		SaturationThreshold: getenvFloat("SATURATION_THRESHOLD", 85.0),
		FailClosedMoisture:  getenvBool("FAIL_CLOSED_ON_MISSING_MOISTURE", false),

		InfluxURL:    getenv("INFLUX_URL", ""),
		InfluxToken:  getenv("INFLUX_TOKEN", ""),
		InfluxOrg:    getenv("INFLUX_ORG", "agrinode"),
		InfluxBucket: getenv("INFLUX_BUCKET", "irrigation"),
	}
}
