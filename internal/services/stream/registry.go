package stream

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agrinode/irrigation-backend/internal/model/messages"
)

const (
	// sendQueueSize bounds the per-connection outbound queue. A viewer that
	// cannot drain it is dropped rather than allowed to stall the fan-out.
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

// Conn is one live viewer connection, owned exclusively by the Registry.
type Conn struct {
	ID    string
	scope string // "" = global, else a sensor id

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Scope returns the subscription scope as exposed on the wire.
func (c *Conn) Scope() string {
	if c.scope == "" {
		return messages.ScopeGlobal
	}
	return c.scope
}

func (c *Conn) stop() {
	c.once.Do(func() { close(c.done) })
}

// writeLoop is the only goroutine writing to the socket. A hung peer is cut
// off by the write deadline so no registry or rate-limit lock is ever held
// across a send.
func (c *Conn) writeLoop(r *Registry) {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(writeTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("stream: write to client %s failed: %v", c.ID, err)
				r.remove(c, "write_error")
				return
			}
		}
	}
}

// Stats is the connection-stats query result.
type Stats struct {
	GlobalConnections int            `json:"global_connections"`
	SensorConnections map[string]int `json:"sensor_connections"`
	TotalConnections  int            `json:"total_connections"`
}

// Registry tracks live viewer connections: global subscribers and per-sensor
// subscribers. Rate-limit bookkeeping deliberately lives elsewhere (limiter)
// so the two invariants do not share a lock.
type Registry struct {
	mu       sync.RWMutex
	global   map[*Conn]struct{}
	bySensor map[string]map[*Conn]struct{}
	metrics  *Metrics
}

func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		global:   make(map[*Conn]struct{}),
		bySensor: make(map[string]map[*Conn]struct{}),
		metrics:  metrics,
	}
}

// NewClientID returns a short unique id for a viewer connection.
func NewClientID() string {
	return uuid.NewString()[:8]
}

// Register creates a Conn for an upgraded socket and starts its writer. The
// welcome frames are enqueued under the registry lock, so they are delivered
// before any live update can interleave.
func (r *Registry) Register(ws *websocket.Conn, clientID, sensorID string, welcome ...[]byte) *Conn {
	c := &Conn{
		ID:    clientID,
		scope: sensorID,
		ws:    ws,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}

	r.mu.Lock()
	if sensorID == "" {
		r.global[c] = struct{}{}
	} else {
		set, ok := r.bySensor[sensorID]
		if !ok {
			set = make(map[*Conn]struct{})
			r.bySensor[sensorID] = set
		}
		set[c] = struct{}{}
	}
	for _, payload := range welcome {
		select {
		case c.send <- payload:
		default:
		}
	}
	r.mu.Unlock()

	r.metrics.connected()
	go c.writeLoop(r)
	log.Printf("stream: client %s connected (scope=%s)", c.ID, c.Scope())
	return c
}

// Unregister removes a connection from all indices. Idempotent.
func (r *Registry) Unregister(c *Conn) {
	r.remove(c, "client_closed")
}

func (r *Registry) remove(c *Conn, reason string) {
	r.mu.Lock()
	removed := false
	if _, ok := r.global[c]; ok {
		delete(r.global, c)
		removed = true
	}
	if set, ok := r.bySensor[c.scope]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			removed = true
		}
		if len(set) == 0 {
			delete(r.bySensor, c.scope)
		}
	}
	r.mu.Unlock()

	c.stop()
	if removed {
		r.metrics.disconnected(reason)
		log.Printf("stream: client %s disconnected (%s)", c.ID, reason)
	}
}

// connsFor snapshots every connection that should receive an update for the
// sensor: all global subscribers plus that sensor's subscribers.
func (r *Registry) connsFor(sensorID string) []*Conn {
	r.mu.RLock()
	out := make([]*Conn, 0, len(r.global)+len(r.bySensor[sensorID]))
	for c := range r.global {
		out = append(out, c)
	}
	for c := range r.bySensor[sensorID] {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) all() []*Conn {
	r.mu.RLock()
	out := make([]*Conn, 0, len(r.global))
	for c := range r.global {
		out = append(out, c)
	}
	for _, set := range r.bySensor {
		for c := range set {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()
	return out
}

// deliver enqueues a payload without ever blocking. A connection with a full
// queue is removed; delivery to the remaining connections continues.
func (r *Registry) deliver(c *Conn, payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("stream: client %s too slow, dropping connection", c.ID)
		r.remove(c, "slow_consumer")
		return false
	}
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		GlobalConnections: len(r.global),
		SensorConnections: make(map[string]int, len(r.bySensor)),
	}
	total := len(r.global)
	for id, set := range r.bySensor {
		s.SensorConnections[id] = len(set)
		total += len(set)
	}
	s.TotalConnections = total
	return s
}
