package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to dashboard clients.
const (
	EventSessionCreated = "session_created"
	EventSessionRemoved = "session_removed"
	EventSessionEvicted = "session_evicted"
	EventMemoryPressure = "memory_pressure"
)

// Event is a lifecycle notification pushed over the events WebSocket. The
// dashboard uses it to refresh the session list and warn about evictions.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

const (
	eventWriteWait   = 10 * time.Second
	eventPingPeriod  = 30 * time.Second
	eventQueueLength = 16
)

// EventHub fans lifecycle events out to connected WebSocket clients.
// Slow clients have events dropped rather than stalling the broadcaster.
type EventHub struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]chan Event
	closed      bool

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewEventHub creates an event hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subscribers: make(map[*websocket.Conn]chan Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("component", "events"),
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	queue := make(chan Event, eventQueueLength)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subscribers[conn] = queue
	h.mu.Unlock()

	go h.writeLoop(conn, queue)
	h.readLoop(conn)
}

// readLoop drains incoming frames so control messages are processed, and
// unregisters the connection when the client goes away.
func (h *EventHub) readLoop(conn *websocket.Conn) {
	defer h.unsubscribe(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(conn *websocket.Conn, queue chan Event) {
	ticker := time.NewTicker(eventPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-queue:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				conn.Close()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (h *EventHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	if queue, ok := h.subscribers[conn]; ok {
		delete(h.subscribers, conn)
		close(queue)
	}
	h.mu.Unlock()
	conn.Close()
}

// Broadcast sends an event to every subscriber. Events to clients with a
// full queue are dropped.
func (h *EventHub) Broadcast(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for conn, queue := range h.subscribers {
		select {
		case queue <- evt:
		default:
			h.logger.Debug("event dropped for slow client", "remote", conn.RemoteAddr())
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects all subscribers and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, queue := range h.subscribers {
		delete(h.subscribers, conn)
		close(queue)
	}
}
