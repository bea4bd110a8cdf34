package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"counselmeet-backend/internal/service/meeting"
	"counselmeet-backend/pkg/constants"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// HubConfig bounds the signaling transport
type HubConfig struct {
	MaxConnections int
	SendBuffer     int
	AllowedOrigins []string
}

// SignalingHub maps participant ids to their connections and delivers room events
type SignalingHub struct {
	mu      sync.RWMutex
	clients map[string]*SignalingClient // participant id -> connection
	conns   map[*SignalingClient]struct{}

	maxConnections int
	sendBuffer     int
	// Semaphore for limiting concurrent connections
	semaphore chan struct{}

	upgrader websocket.Upgrader
}

// SignalingClient is one websocket connection
type SignalingClient struct {
	hub  *SignalingHub
	conn *websocket.Conn
	send chan []byte

	// participantID and roomID are written under hub.mu
	participantID string
	roomID        string

	// detached is set once the registry has dropped the participant (room ended, admission denied)
	detached atomic.Bool
	closed   bool

	closeOnce   sync.Once
	cleanupOnce sync.Once
}

// NewSignalingHub creates the hub; it has no goroutine of its own
func NewSignalingHub(cfg HubConfig) *SignalingHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = constants.MaxSignalingConnections
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = constants.SignalingSendBuffer
	}

	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = struct{}{}
	}

	return &SignalingHub{
		clients:        make(map[string]*SignalingClient),
		conns:          make(map[*SignalingClient]struct{}),
		maxConnections: cfg.MaxConnections,
		sendBuffer:     cfg.SendBuffer,
		semaphore:      make(chan struct{}, cfg.MaxConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Reject empty origins - require explicit origin for security
					return false
				}
				if allowAll {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Deliver implements meeting.Notifier. It marshals once and never blocks.
func (h *SignalingHub) Deliver(participantIDs []string, evt *meeting.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("Failed to marshal room event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	detaches := evt.Type == meeting.EventRoomEnded || evt.Type == meeting.EventAdmissionDenied

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range participantIDs {
		c, ok := h.clients[id]
		if !ok {
			metrics.SignalingRelayDroppedTotal.WithLabelValues("not_connected").Inc()
			continue
		}
		if detaches {
			c.detached.Store(true)
		}
		c.enqueue(data)
	}
}

// sendTo queues data for one client
func (h *SignalingHub) sendTo(c *SignalingClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c.enqueue(data)
}

// enqueue must run under hub.mu so the send channel cannot close underneath it
func (c *SignalingClient) enqueue(data []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.SignalingSlowConsumersTotal.Inc()
		logger.Warn("Signaling client too slow, disconnecting",
			zap.String("participant_id", c.participantID))
		c.closeConn()
	}
}

func (c *SignalingClient) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// lookup returns the client bound to a participant and the room it joined
func (h *SignalingHub) lookup(participantID string) (*SignalingClient, string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[participantID]
	if !ok {
		return nil, "", false
	}
	return c, c.roomID, true
}

// bind maps a participant to c, replacing any earlier connection
func (h *SignalingHub) bind(participantID string, c *SignalingClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[participantID] = c
	c.participantID = participantID
	c.roomID = ""
	c.detached.Store(false)
}

func (h *SignalingHub) setRoom(c *SignalingClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.roomID = roomID
}

// unbind removes the mapping only if it still points at c
func (h *SignalingHub) unbind(participantID string, c *SignalingClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[participantID] == c {
		delete(h.clients, participantID)
	}
	if c.participantID == participantID {
		c.participantID = ""
		c.roomID = ""
	}
}

func (h *SignalingHub) register(c *SignalingClient) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.SignalingConnectionsActive.Inc()
}

// unregister closes the send queue; the write pump then ends the connection
func (h *SignalingHub) unregister(c *SignalingClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	c.closed = true
	close(c.send)
	metrics.SignalingConnectionsActive.Dec()
}

// ConnectionCount reports open connections
func (h *SignalingHub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every connection; their read pumps then run the normal disconnect path
func (h *SignalingHub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		c.closeConn()
	}
}
