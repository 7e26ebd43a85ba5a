// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
)

// Message types pushed to connected clients.
const (
	MessageTypeDetection  = "detection"
	MessageTypeAggregate  = "aggregate"
	MessageTypeStatistics = "statistics"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts detection events
// to them. It implements suture.Service so it can live in the supervision
// tree alongside the sweeper and ingest pipeline.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub event loop until the context is canceled.
//
// Selection is priority-based so behavior stays predictable when multiple
// channels are ready at once: shutdown first, then client lifecycle events,
// then broadcasts. Client state is therefore always settled before a message
// fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle events (non-blocking check).
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until any event arrives.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// String identifies the hub in supervisor logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	removed := false
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		removed = true
	}
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		metrics.WSConnections.Dec()
		logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
	}
}

// broadcastToClients fans a message out to all connected clients in client-ID
// order. Sorting keeps delivery order reproducible; map iteration order is not.
// A client whose send buffer is full is dropped rather than allowed to stall
// the hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
		metrics.WSDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("dropping slow websocket client")
	}
}

// shutdown closes all connected clients and logs the reason. Context
// cancellation is expected during graceful shutdown, so it is not logged
// as an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// BroadcastDetection pushes a new detection to all connected clients.
func (h *Hub) BroadcastDetection(d *detection.Detection) {
	if d == nil {
		return
	}
	message := Message{
		Type: MessageTypeDetection,
		Data: d,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSDropped.Inc()
		logging.Warn().Msg("broadcast channel full, dropping detection message")
	}
}

// BroadcastAggregate pushes an aggregate incident assessment to all
// connected clients.
func (h *Hub) BroadcastAggregate(agg detection.AggregateIncident) {
	message := Message{
		Type: MessageTypeAggregate,
		Data: agg,
	}

	select {
	case h.broadcast <- message:
		logging.Debug().
			Int("clients", h.GetClientCount()).
			Int("score", agg.Score).
			Msg("broadcast aggregate")
	default:
		metrics.WSDropped.Inc()
		logging.Warn().Msg("broadcast channel full, dropping aggregate message")
	}
}

// StatisticsData represents data sent with a statistics message.
type StatisticsData struct {
	Timestamp  string               `json:"timestamp"`
	Statistics detection.Statistics `json:"statistics"`
}

// BroadcastStatistics pushes refreshed detection statistics to all
// connected clients.
func (h *Hub) BroadcastStatistics(stats detection.Statistics) {
	data := StatisticsData{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Statistics: stats,
	}
	message := Message{
		Type: MessageTypeStatistics,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSDropped.Inc()
		logging.Warn().Msg("broadcast channel full, dropping statistics message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
