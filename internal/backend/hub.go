package backend

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks the live socket of each client. A new socket for the same
// client replaces the old one.
type Hub struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active: make(map[string]*websocket.Conn),
		logger: logger,
	}
}

// Get returns the live socket of a client, or nil.
func (h *Hub) Get(clientID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active[clientID]
}

// Register records conn as the socket of clientID.
func (h *Hub) Register(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	existing := h.active[clientID]
	h.active[clientID] = conn
	count := len(h.active)
	h.mu.Unlock()

	// Closing waits for the handshake, so it happens outside the lock.
	if existing != nil && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "connection replaced")
		h.logger.Info("Client connection replaced", "client_id", clientID)
	}
	h.logger.Info("Client registered", "client_id", clientID, "clients", count)
}

// Unregister forgets conn if it is still the socket of clientID.
func (h *Hub) Unregister(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[clientID]; ok && current == conn {
		delete(h.active, clientID)
		h.logger.Info("Client unregistered", "client_id", clientID, "clients", len(h.active))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.active
	h.active = make(map[string]*websocket.Conn)
	h.mu.Unlock()

	for id, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		h.logger.Info("Client disconnected", "client_id", id)
	}
}
