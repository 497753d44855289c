package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrChannelFull    = errors.New("client channel full")
)

// Client is a subscriber. A nil Identifier receives events for every local
// identity.
type Client struct {
	ClientID    string
	Identifier  *string
	Types       map[Type]struct{}
	ConnectedAt time.Time
	MessageChan chan *Event
}

func NewClient(identifier *string, types ...Type) *Client {
	c := &Client{
		ClientID:    uuid.New().String(),
		Identifier:  identifier,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Event, 100),
	}
	if len(types) > 0 {
		c.Types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			c.Types[t] = struct{}{}
		}
	}
	return c
}

func (c *Client) wants(evt *Event) bool {
	if c.Identifier != nil && *c.Identifier != evt.Identifier {
		return false
	}
	if c.Types == nil {
		return true
	}
	_, ok := c.Types[evt.Type]
	return ok
}

// Hub fans protocol events out to registered clients. Slow clients drop
// events instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.MessageChan)
		delete(h.clients, clientID)
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers evt to every interested client and returns how many
// clients received it.
func (h *Hub) Publish(evt *Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if c.wants(evt) && trySend(c, evt) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) SendToClient(clientID string, evt *Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, evt) {
		return ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.MessageChan)
		delete(h.clients, id)
	}
}

func trySend(c *Client, evt *Event) bool {
	select {
	case c.MessageChan <- evt:
		return true
	default:
		return false
	}
}
