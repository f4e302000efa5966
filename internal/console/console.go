// Package console fans chat activity out to operator console clients over
// WebSocket connections.
//
// The Hub implements the dialogue engine's Notifier: every recorded
// message, inbound or outbound, is broadcast to all connected consoles so
// operators watch conversations live.
package console

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn is one connected console client. The write mutex serializes frames
// because gorilla/websocket allows only one concurrent writer.
type conn struct {
	id     string
	socket *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (c *conn) send(event models.ConsoleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.socket.WriteJSON(event)
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.socket.Close()
}

// Hub manages connected operator consoles and broadcasts chat events.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

// NewHub creates an empty console hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The console is an internal operator tool behind the
			// deployment's own ingress, not a public origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}
}

// HandleWS upgrades an HTTP request to a console WebSocket connection and
// keeps it registered until the peer disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Console websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &conn{id: uuid.New().String(), socket: socket}
	h.add(c)
	slog.Info("Console client connected", "connID", c.id, "remote", r.RemoteAddr)

	// Consoles only listen; the read loop exists to notice disconnects
	// and answer protocol-level pings.
	go func() {
		defer func() {
			h.remove(c.id)
			c.close()
			slog.Info("Console client disconnected", "connID", c.id)
		}()
		for {
			if _, _, err := socket.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish broadcasts a chat event to all connected consoles. Slow or dead
// connections are dropped rather than allowed to stall the caller.
func (h *Hub) Publish(event models.ConsoleEvent) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(event); err != nil {
			slog.Warn("Console broadcast failed, dropping client", "connID", c.id, "error", err)
			h.remove(c.id)
			c.close()
		}
	}
}

// Count returns the number of connected consoles.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects all consoles.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}
