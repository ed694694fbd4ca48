package stream

import "github.com/prometheus/client_golang/prometheus"

// Metrics for the viewer fan-out. A nil *Metrics disables instrumentation
// (nil input = nil feature).
type Metrics struct {
	updatesSent        prometheus.Counter
	updatesRateLimited prometheus.Counter
	heartbeatsSent     prometheus.Counter
	clientsConnected   prometheus.Gauge
	connectionsTotal   prometheus.Counter
	disconnections     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		updatesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "updates_sent_total",
			Help:      "Update frames delivered to viewer connections",
		}),
		updatesRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "updates_rate_limited_total",
			Help:      "Broadcast attempts suppressed by the per-sensor rate limit",
		}),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat frames delivered to viewer connections",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "clients_connected",
			Help:      "Currently connected viewer connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "client_connections_total",
			Help:      "Viewer connections accepted since start",
		}),
		disconnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "stream",
			Name:      "client_disconnections_total",
			Help:      "Viewer disconnections by reason",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.updatesSent,
		m.updatesRateLimited,
		m.heartbeatsSent,
		m.clientsConnected,
		m.connectionsTotal,
		m.disconnections,
	)
	return m
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.clientsConnected.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) disconnected(reason string) {
	if m == nil {
		return
	}
	m.clientsConnected.Dec()
	m.disconnections.WithLabelValues(reason).Inc()
}

func (m *Metrics) sent(n int) {
	if m == nil {
		return
	}
	m.updatesSent.Add(float64(n))
}

func (m *Metrics) rateLimited() {
	if m == nil {
		return
	}
	m.updatesRateLimited.Inc()
}

func (m *Metrics) heartbeat(n int) {
	if m == nil {
		return
	}
	m.heartbeatsSent.Add(float64(n))
}
