// Package realtime pushes appointment changes to connected admin consoles.
//
// Events flow Kafka -> Redis channel per tenant -> every booking instance's
// hub -> websocket clients of that tenant.
package realtime

import (
	"context"
	"log/slog"
	"sync"
)

const clientBuffer = 16

// Publisher delivers a message to every subscriber of a tenant.
type Publisher interface {
	Publish(ctx context.Context, tenantID string, msg []byte) error
}

type client struct {
	send chan []byte
}

// Hub fans messages out to the websocket clients of this instance.
type Hub struct {
	mu      sync.RWMutex
	tenants map[string]map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{tenants: map[string]map[*client]struct{}{}, logger: logger}
}

func (h *Hub) register(tenantID string) *client {
	c := &client{send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[tenantID]
	if !ok {
		set = map[*client]struct{}{}
		h.tenants[tenantID] = set
	}
	set[c] = struct{}{}
	return c
}

func (h *Hub) unregister(tenantID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.tenants[tenantID]
	if !ok {
		return
	}
	if _, ok := set[c]; ok {
		delete(set, c)
		close(c.send)
	}
	if len(set) == 0 {
		delete(h.tenants, tenantID)
	}
}

// Broadcast never blocks; a client whose buffer is full misses the message.
func (h *Hub) Broadcast(tenantID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.tenants[tenantID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("realtime client too slow; message dropped", "tenant_id", tenantID)
		}
	}
}

// Publish lets the hub act as the publisher when Redis is not configured.
func (h *Hub) Publish(_ context.Context, tenantID string, msg []byte) error {
	h.Broadcast(tenantID, msg)
	return nil
}

// Clients reports the number of connections for a tenant.
func (h *Hub) Clients(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[tenantID])
}
