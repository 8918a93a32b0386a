// Package ws pushes live monitor status to browsers over websockets.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// sendBuffer is how many messages may queue for one client before new ones are dropped.
const sendBuffer = 16

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected status clients and fans messages out to them.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	latestMu sync.RWMutex
	latest   *StatusMessage
}

// NewHub creates a new status hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("status client registered")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast queues data for every client. It never blocks.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow client, drop message
		}
	}
}

// BroadcastStatus remembers msg as the latest status and sends it to clients.
func (h *Hub) BroadcastStatus(msg *StatusMessage) {
	h.latestMu.Lock()
	h.latest = msg
	h.latestMu.Unlock()

	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal status message")
		return
	}
	h.broadcast(data)
}

// BroadcastEvent sends a transition event to clients.
func (h *Hub) BroadcastEvent(msg *EventMessage) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal event message")
		return
	}
	h.broadcast(data)
}

// Latest returns the last status broadcast, or nil before the first frame.
func (h *Hub) Latest() *StatusMessage {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()
	return h.latest
}
