// Package ws streams relay events to browser dashboards over WebSocket.
// Clients are read-only consumers: every published document goes to every
// connected client.
package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gexcompass/internal/metrics"
)

// Hub manages WebSocket connections and fan-out.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(count)
			h.logger.Debug("ws client registered",
				zap.String("connID", client.connID),
				zap.Int("clients", count),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.SetWSClients(count)
			h.logger.Debug("ws client unregistered",
				zap.String("connID", client.connID),
				zap.Int("clients", count),
			)

		case payload := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Buffer full, schedule disconnect
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.SetWSClients(0)
}

// Publish queues a document for delivery to every connected client. Drops
// the document when the hub's queue is saturated rather than blocking the
// caller.
func (h *Hub) Publish(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("ws broadcast queue full, dropping document")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
