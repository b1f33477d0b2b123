package sse

import (
	"net/http"
	"time"

	"github.com/mcoot/gamewallet/internal/model"
)

const (
	// Time between keepalive comments
	pingPeriod = 30 * time.Second

	// Buffer size for outgoing messages
	sendBufferSize = 16
)

// Client represents a connected SSE client
type Client struct {
	hub         *Hub
	accountID   model.AccountID
	send        chan []byte
	connectedAt time.Time
}

// NewClient creates a new SSE client
func NewClient(hub *Hub, accountID model.AccountID) *Client {
	return &Client{
		hub:         hub,
		accountID:   accountID,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
	}
}

// Serve streams balance events for an account until the client goes away
// or the server shuts the hub down
func (m *HubManager) Serve(w http.ResponseWriter, r *http.Request, accountID model.AccountID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// A hub closed by the janitor between lookup and registration is
	// replaced on the next attempt
	var client *Client
	for client == nil {
		hub := m.GetOrCreateHub(accountID)
		if hub == nil {
			http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
			return
		}
		candidate := NewClient(hub, accountID)
		if hub.Register(candidate) {
			client = candidate
			continue
		}
		m.mu.Lock()
		if m.hubs[accountID] == hub {
			delete(m.hubs, accountID)
		}
		m.mu.Unlock()
	}
	defer client.hub.Unregister(client)

	m.metrics.StreamClientConnected(true)
	defer m.metrics.StreamClientConnected(false)

	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(formatSSEMessage("connected", `{"status":"connected"}`))
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				// Hub closed the channel
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
