// Package hub fans websocket messages out to subscribers through a single
// owner goroutine.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Message is one encoded JSON document, sent to peers as a text frame.
type Message []byte

// Sink receives broadcast messages. *Subscriber is the websocket sink;
// tests register their own.
type Sink interface {
	// Outbox is the buffered channel the hub writes to. The hub closes it
	// when the sink is removed.
	Outbox() chan Message
}

// Stats holds hub counters
type Stats struct {
	Clients     int
	Broadcasts  uint64
	Dropped     uint64 // Messages dropped because the broadcast queue was full
	SlowClients uint64 // Clients removed for not keeping up
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	// Registered sinks
	clients map[Sink]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan Sink

	// Unregister requests from clients
	unregister chan Sink

	// Closed when Run returns
	done chan struct{}

	// Protects clients for read-only access from outside
	mu sync.RWMutex

	broadcasts  atomic.Uint64
	dropped     atomic.Uint64
	slowClients atomic.Uint64
}

// New creates a new Hub. logger may be nil.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[Sink]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan Sink),
		unregister: make(chan Sink),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// All sinks are closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.Outbox())
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Outbox())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Outbox() <- message:
					// Message queued successfully
				default:
					// Client's buffer is full, they're too slow
					close(client.Outbox())
					delete(h.clients, client)
					h.slowClients.Add(1)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a sink. It returns false if the hub has stopped.
func (h *Hub) Register(s Sink) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a sink. Safe to call after the hub has stopped.
func (h *Hub) Unregister(s Sink) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		h.broadcasts.Add(1)
	default:
		// Broadcast channel full - drop message
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:     h.ClientCount(),
		Broadcasts:  h.broadcasts.Load(),
		Dropped:     h.dropped.Load(),
		SlowClients: h.slowClients.Load(),
	}
}
