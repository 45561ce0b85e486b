package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/log"
	"github.com/ayusman/mudra/internal/status"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler pushes every published State to WebSocket clients as JSON.
// Each client gets its own subscription, so a slow client only drops its
// own intermediate states.
type EventsHandler struct {
	publisher *status.Publisher

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewEventsHandler creates an EventsHandler fed by p.
func NewEventsHandler(p *status.Publisher) *EventsHandler {
	return &EventsHandler{
		publisher: p,
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	if !h.add(conn) {
		return
	}
	defer h.remove(conn)

	states, cancel := h.publisher.Subscribe()
	defer cancel()

	// The client never sends anything we act on; reading detects the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if st, ok := h.publisher.Latest(); ok {
		if err := h.send(conn, st); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := h.send(conn, st); err != nil {
				log.Debug("websocket client dropped", "err", err)
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *EventsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
	}
}

func (h *EventsHandler) send(conn *websocket.Conn, st status.State) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(st)
}

func (h *EventsHandler) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[conn] = struct{}{}
	return true
}

func (h *EventsHandler) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}
