package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/teslashibe/go-tumbller/internal/log"
)

const broadcastBuffer = 256

// Hub maintains the set of connected dashboard clients and fans typed
// frames out to them. A single Run goroutine owns the client set; slow
// clients are dropped rather than allowed to stall the broadcast path.
type Hub struct {
	name string

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run exits

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates a hub. Run must be started before clients attach.
func New(name string) *Hub {
	return &Hub{
		name:       name,
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run owns the client set until ctx is cancelled. Call in a goroutine.
// After it returns, register and unregister attempts fall through instead
// of blocking.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	logger := log.Component("hub").With("name", h.name)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			logger.Info("client connected", "client_id", client.ID, "total", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			logger.Info("client disconnected", "client_id", client.ID, "remaining", count)

		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					// Client buffer full, they are too slow to keep.
					close(client.send)
					delete(h.clients, client)
					logger.Warn("dropped slow client", "client_id", client.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast encodes env and queues it for every connected client.
// Frames are dropped when the broadcast queue is full.
func (h *Hub) Broadcast(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("broadcast queue full, dropping frame", "hub", h.name, "type", env.Type)
	}
	return nil
}

// BroadcastPayload wraps payload in a typed envelope and broadcasts it.
func (h *Hub) BroadcastPayload(frameType string, payload any) error {
	env, err := NewEnvelope(frameType, payload)
	if err != nil {
		return err
	}
	return h.Broadcast(env)
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
