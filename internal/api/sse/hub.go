package sse

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/gamewallet/internal/metrics"
	"github.com/mcoot/gamewallet/internal/model"
)

// Hub manages SSE clients for a single account
type Hub struct {
	accountID model.AccountID
	clients   map[*Client]bool
	mu        sync.RWMutex
	logger    *slog.Logger

	// Channels for managing clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// NewHub creates a new Hub for an account
func NewHub(accountID model.AccountID, logger *slog.Logger) *Hub {
	return &Hub{
		accountID:  accountID,
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("account_id", string(accountID))),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Debug("sse hub started")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("sse client registered", slog.Int("total_clients", clientCount))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				clientCount := len(h.clients)
				h.mu.Unlock()
				h.logger.Info("sse client unregistered",
					slog.Duration("connection_duration", time.Since(client.connectedAt)),
					slog.Int("total_clients", clientCount))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			dropped := 0
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					dropped++
				}
			}
			h.mu.RUnlock()
			if dropped > 0 {
				h.logger.Warn("sse message dropped - client buffer full", slog.Int("dropped", dropped))
			}

		case <-h.done:
			h.mu.Lock()
			clientCount := len(h.clients)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Debug("sse hub stopped", slog.Int("disconnected_clients", clientCount))
			return
		}
	}
}

// Register adds a client to the hub. It returns false if the hub has
// already been closed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all clients
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("sse broadcast dropped - hub buffer full")
	}
}

// BroadcastEvent sends an SSE event with a name and data
func (h *Hub) BroadcastEvent(eventName, data string) {
	h.Broadcast(formatSSEMessage(eventName, data))
}

// Close shuts down the hub; it is safe to call more than once
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// formatSSEMessage formats an SSE message with event name and data.
// Multi-line data gets a "data: " prefix on each line.
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteByte('\n')
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// splitLines splits on LF or CRLF, dropping a trailing line break
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// HubManager manages hubs for all accounts with open streams
type HubManager struct {
	hubs    map[model.AccountID]*Hub
	closed  bool
	mu      sync.RWMutex
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHubManager creates a new HubManager. metrics may be nil.
func NewHubManager(metrics *metrics.Metrics, logger *slog.Logger) *HubManager {
	return &HubManager{
		hubs:    make(map[model.AccountID]*Hub),
		metrics: metrics,
		logger:  logger.With(slog.String("component", "sse")),
	}
}

// GetOrCreateHub returns the hub for an account, creating one if it doesn't exist.
// Returns nil once the manager is closed.
func (m *HubManager) GetOrCreateHub(accountID model.AccountID) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	if hub, ok := m.hubs[accountID]; ok {
		return hub
	}

	hub := NewHub(accountID, m.logger)
	m.hubs[accountID] = hub
	go hub.Run()
	return hub
}

// GetHub returns the hub for an account, or nil if it doesn't exist
func (m *HubManager) GetHub(accountID model.AccountID) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[accountID]
}

// RemoveHub removes and closes a hub
func (m *HubManager) RemoveHub(accountID model.AccountID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[accountID]; ok {
		hub.Close()
		delete(m.hubs, accountID)
	}
}

// CleanupEmptyHubs removes hubs with no clients
func (m *HubManager) CleanupEmptyHubs() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removedCount := 0
	for id, hub := range m.hubs {
		if hub.ClientCount() == 0 {
			hub.Close()
			delete(m.hubs, id)
			removedCount++
		}
	}
	if removedCount > 0 {
		m.logger.Debug("sse empty hubs cleaned up", slog.Int("removed", removedCount))
	}
}

// RunJanitor cleans up empty hubs every interval until ctx is done
func (m *HubManager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupEmptyHubs()
		}
	}
}

// Close closes every hub, disconnecting all clients, and stops new
// streams from opening
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, hub := range m.hubs {
		hub.Close()
		delete(m.hubs, id)
	}
}

// HubCount returns the number of live hubs
func (m *HubManager) HubCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}
