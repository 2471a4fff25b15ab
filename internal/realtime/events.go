// file: internal/realtime/events.go
// version: 2.0.0
// guid: 9e8d7f6a-5c4b-3a21-0f9e-8d7c6b5a4392

package realtime

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventCatalogImported  EventType = "catalog.imported"
	EventCatalogRefreshed EventType = "catalog.refreshed"
	EventCatalogFallback  EventType = "catalog.fallback"
	EventWindowLoaded     EventType = "window.loaded"
	EventSystemStatus     EventType = "system.status"
)

// Event represents a real-time event to send to presentation clients.
// CatalogID scopes catalog events; system events leave it empty.
type Event struct {
	Type      EventType      `json:"type"`
	CatalogID string         `json:"catalog_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Client represents a connected SSE client
type Client struct {
	ID       string
	Channel  chan *Event
	mu       sync.RWMutex
	catalogs map[string]bool // catalogs this client is interested in
}

// NewClient creates a new SSE client
func NewClient(id string) *Client {
	return &Client{
		ID:       id,
		Channel:  make(chan *Event, 64),
		catalogs: make(map[string]bool),
	}
}

// Subscribe limits the client to one catalog's events. Clients with no
// subscriptions receive everything.
func (c *Client) Subscribe(catalogID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalogs[catalogID] = true
}

// IsSubscribed checks whether the client wants events for a catalog.
func (c *Client) IsSubscribed(catalogID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalogs[catalogID]
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     logrus.FieldLogger
}

// NewEventHub creates a new event hub
func NewEventHub(log logrus.FieldLogger) *EventHub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventHub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.log.WithField("client", client.ID).Debug("SSE client registered")
}

// UnregisterClient removes a client
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		h.log.WithField("client", clientID).Debug("SSE client unregistered")
	}
}

// Broadcast sends an event to all interested clients. Slow clients drop
// events rather than block the publisher.
func (h *EventHub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if event.CatalogID != "" && len(client.catalogs) > 0 && !client.IsSubscribed(event.CatalogID) {
			continue
		}
		select {
		case client.Channel <- event:
		default:
			h.log.WithField("client", client.ID).Warn("SSE channel full, dropping event")
		}
	}
}

// SendCatalogImported announces a fresh import of one catalog.
func (h *EventHub) SendCatalogImported(catalogID string, itemCount int) {
	h.Broadcast(&Event{
		Type:      EventCatalogImported,
		CatalogID: catalogID,
		Timestamp: time.Now(),
		Data: map[string]any{
			"catalog_id": catalogID,
			"items":      itemCount,
		},
	})
}

// SendCatalogFallback announces that stale data is being served after a
// failed refresh, so clients can show the outdated-data state.
func (h *EventHub) SendCatalogFallback(catalogID, message string) {
	h.Broadcast(&Event{
		Type:      EventCatalogFallback,
		CatalogID: catalogID,
		Timestamp: time.Now(),
		Data: map[string]any{
			"catalog_id": catalogID,
			"message":    message,
		},
	})
}

// SendWindowLoaded announces a completed window chunk load.
func (h *EventHub) SendWindowLoaded(catalogID, collection, categoryID string, loadedChunks int) {
	h.Broadcast(&Event{
		Type:      EventWindowLoaded,
		CatalogID: catalogID,
		Timestamp: time.Now(),
		Data: map[string]any{
			"catalog_id":    catalogID,
			"collection":    collection,
			"category_id":   categoryID,
			"loaded_chunks": loadedChunks,
		},
	})
}

// SendSystemStatus sends a system status event
func (h *EventHub) SendSystemStatus(data map[string]any) {
	h.Broadcast(&Event{
		Type:      EventSystemStatus,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// GetClientCount returns the number of connected clients
func (h *EventHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE handles a Server-Sent Events connection
func (h *EventHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	client := NewClient("client-" + ulid.Make().String())
	if catalogID := c.Query("catalog"); catalogID != "" {
		client.Subscribe(catalogID)
	}

	h.RegisterClient(client)
	defer h.UnregisterClient(client.ID)

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-client.Channel:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return true
			}
			c.SSEvent(string(event.Type), string(payload))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
