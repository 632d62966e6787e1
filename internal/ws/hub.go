package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Event is a deployment lifecycle notification delivered to project subscribers.
type Event struct {
	Event     string `json:"event"`
	ProjectID string `json:"project_id"`
}

// Hub fans lifecycle events out to websocket clients grouped by project ID.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Subscriber]struct{}
	events  chan Event
	log     *slog.Logger
}

// NewHub creates an initialized Hub. Run must be started to deliver events.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[Subscriber]struct{}),
		events:  make(chan Event, 64),
		log:     log,
	}
}

// Run delivers queued events until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case evt := <-h.events:
			h.deliver(evt)
		}
	}
}

// Register adds a client to a project stream.
func (h *Hub) Register(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[projectID]; !ok {
		h.clients[projectID] = make(map[Subscriber]struct{})
	}
	h.clients[projectID][client] = struct{}{}
}

// Unregister removes a client.
func (h *Hub) Unregister(projectID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(projectID, client)
}

// Subscribers reports how many clients follow a project.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[projectID])
}

// Broadcast queues evt for delivery. Events are dropped when the queue is full.
func (h *Hub) Broadcast(evt Event) {
	select {
	case h.events <- evt:
	default:
		h.log.Warn("event queue full, dropping event", "event", evt.Event, "project_id", evt.ProjectID)
	}
}

func (h *Hub) deliver(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("encode event", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients[evt.ProjectID]))
	for c := range h.clients[evt.ProjectID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			c.Close()
			h.Unregister(evt.ProjectID, c)
		}
	}
}

func (h *Hub) remove(projectID string, client Subscriber) {
	if clients, ok := h.clients[projectID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, projectID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for projectID, clients := range h.clients {
		for c := range clients {
			c.Close()
		}
		delete(h.clients, projectID)
	}
}
