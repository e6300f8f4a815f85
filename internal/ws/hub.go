package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/database"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/logging"
	"github.com/HaleKim/BSC-MultiSpectral-Model-DashBoard/internal/pipeline"
)

// Hub tracks the connected websocket clients
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     zerolog.Logger
}

var _ pipeline.EventHandler = (*Hub)(nil)

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     logging.Component("ws"),
	}
}

// Register adds a client
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Str("client_id", c.id).Int("clients", n).Msg("client connected")
}

// Unregister removes a client
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Str("client_id", c.id).Int("clients", n).Msg("client disconnected")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client and returns how many accepted it
func (h *Hub) Broadcast(event string, data any) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.Send(event, data) {
			sent++
		}
	}
	return sent
}

// HandleEvent broadcasts a newly recorded event
func (h *Hub) HandleEvent(ev *database.EventView) {
	n := h.Broadcast(EventNewEvent, ev)
	h.log.Debug().Int64("event_id", ev.ID).Int("clients", n).Msg("new event broadcast")
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Close()
	}
}
