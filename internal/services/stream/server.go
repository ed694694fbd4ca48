package stream

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agrinode/irrigation-backend/internal/model/messages"
	"github.com/agrinode/irrigation-backend/internal/services/telemetry"
)

// Server exposes the viewer websocket endpoint and the connection-stats
// query.
type Server struct {
	registry *Registry
	cache    *telemetry.Cache
	upgrader websocket.Upgrader
}

func NewServer(registry *Registry, cache *telemetry.Cache) *Server {
	return &Server{
		registry: registry,
		cache:    cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

// HandleSensors upgrades the connection and registers it. An empty sensor_id
// query parameter subscribes to the global stream; global connections get a
// summary frame with the current cache snapshot before any live update.
func (s *Server) HandleSensors(w http.ResponseWriter, r *http.Request) {
	sensorID := r.URL.Query().Get("sensor_id")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("stream: upgrade failed: %v", err)
		return
	}

	clientID := NewClientID()
	scope := sensorID
	if scope == "" {
		scope = messages.ScopeGlobal
	}

	var welcome [][]byte
	connect, err := json.Marshal(messages.NewConnect(clientID, scope))
	if err == nil {
		welcome = append(welcome, connect)
	}
	if sensorID == "" {
		if summary, err := json.Marshal(messages.NewSummary(s.cache.Snapshot())); err == nil {
			welcome = append(welcome, summary)
		}
	}

	c := s.registry.Register(ws, clientID, sensorID, welcome...)
	go s.readLoop(c)
}

// readLoop drains inbound frames. Viewers are read-only; a data frame from a
// client gets an error frame back, and the loop otherwise exists to detect
// the close handshake and network errors.
func (s *Server) readLoop(c *Conn) {
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			s.registry.Unregister(c)
			return
		}
		if payload, err := json.Marshal(messages.NewError("READ_ONLY", "this stream does not accept messages")); err == nil {
			s.registry.deliver(c, payload)
		}
	}
}

func (s *Server) HandleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.Stats())
}
