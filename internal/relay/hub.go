// Package relay fans content-free "state changed" signals out to the clients
// connected to a session's room. It never carries session state.
package relay

import (
	"context"
	"log/slog"
	"sync"
)

// RoomName is the wire name of a session's room.
func RoomName(sessionID string) string {
	return "session_" + sessionID
}

// Client is one connected channel. Pending signals coalesce into a single
// slot: a signal that finds the slot full is dropped, since the pending one
// already means "refetch".
type Client struct {
	ID      string
	signals chan struct{}

	// rooms is guarded by the owning Hub's mutex.
	rooms map[string]struct{}
}

func NewClient(id string) *Client {
	return &Client{
		ID:      id,
		signals: make(chan struct{}, 1),
		rooms:   make(map[string]struct{}),
	}
}

// Signals delivers one value per coalesced batch of signals.
func (c *Client) Signals() <-chan struct{} {
	return c.signals
}

func (c *Client) notify() bool {
	select {
	case c.signals <- struct{}{}:
		return true
	default:
		return false
	}
}

// Hub tracks room membership for this process.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// JoinRoom adds c to the session's room. It reports whether c was newly added.
func (h *Hub) JoinRoom(sessionID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[sessionID] = room
	}
	if _, member := room[c]; member {
		return false
	}
	room[c] = struct{}{}
	c.rooms[sessionID] = struct{}{}
	return true
}

// Leave removes c from one room; absent members are ignored.
func (h *Hub) Leave(sessionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sessionID, c)
}

// LeaveAll removes c from every room it joined. Called on disconnect.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range c.rooms {
		h.leaveLocked(sessionID, c)
	}
}

func (h *Hub) leaveLocked(sessionID string, c *Client) {
	delete(c.rooms, sessionID)
	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

// Members returns the number of clients in the session's room.
func (h *Hub) Members(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Broadcast signals every local member of the room, including the sender,
// and returns how many had an empty slot.
func (h *Hub) Broadcast(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[sessionID] {
		if c.notify() {
			delivered++
		} else {
			h.logger.Debug("signal coalesced", "session_id", sessionID, "client_id", c.ID)
		}
	}
	return delivered
}

// Signal implements app.Notifier for a single-instance deployment.
func (h *Hub) Signal(_ context.Context, sessionID string) {
	h.Broadcast(sessionID)
}
