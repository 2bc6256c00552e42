// Package hub implements the monitor tap's client fan-out: every translated
// or sent frame is broadcast to every connected observability client,
// subject to a configurable backpressure policy for clients that fall
// behind.
package hub

import (
	"sync"

	"github.com/xcan-translate/xcan/internal/can"
	"github.com/xcan-translate/xcan/internal/logging"
	"github.com/xcan-translate/xcan/internal/metrics"
)

// BackpressurePolicy decides what happens to a client whose outbound queue
// is full at broadcast time.
type BackpressurePolicy int

const (
	// PolicyDrop discards the frame for that client only; the client stays
	// connected.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick disconnects the client instead of dropping individual
	// frames, trading a reconnect for guaranteed in-order delivery up to
	// the disconnect point.
	PolicyKick
)

// Client is one connected monitor tap subscriber.
type Client struct {
	Out       chan can.Frame
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

// Hub fans translated/sent frames out to every connected monitor client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates an empty Hub with default settings.
func New() *Hub { return &Hub{clients: make(map[*Client]struct{})} }

// Add registers a client with the hub.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	prev := len(h.clients)
	h.clients[c] = struct{}{}
	cur := len(h.clients)
	h.mu.Unlock()
	if prev == 0 && cur == 1 {
		logging.L().Info("monitor_clients_first_connected")
	}
}

// Remove unregisters a client; safe to call multiple times.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
	}
	cur := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetMonitorClients(cur)
	if existed && cur == 0 {
		logging.L().Info("monitor_clients_last_disconnected")
	}
}

// Broadcast sends a frame to every connected client, honoring the
// backpressure policy for clients whose queue is full.
func (h *Hub) Broadcast(fr can.Frame) {
	clients := h.Snapshot()
	metrics.SetMonitorFanout(len(clients))
	metrics.SetMonitorClients(len(clients))
	if len(clients) > 0 {
		max := 0
		sum := 0
		for _, c := range clients {
			l := len(c.Out)
			if l > max {
				max = l
			}
			sum += l
		}
		metrics.SetMonitorQueueDepth(max, sum/len(clients))
	}
	for _, c := range clients {
		select {
		case c.Out <- fr:
		default:
			if h.Policy == PolicyKick {
				metrics.IncMonitorKick()
				c.Close() // signal writer to exit; server removes on disconnect
			} else {
				metrics.IncMonitorDrop()
			}
		}
	}
}

// Snapshot returns a slice copy of the currently connected clients.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of active clients.
func (h *Hub) Count() int { h.mu.RLock(); n := len(h.clients); h.mu.RUnlock(); return n }
