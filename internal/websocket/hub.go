// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message types sent to browsers.
const (
	TypeEvent   = "event"
	TypeAlert   = "alert"
	TypeView    = "view"
	TypeHistory = "history"
	TypeError   = "error"
)

// Envelope is the frame format on the wire: {"type": ..., "payload": ...}.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then stops
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.stop()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("websocket client registered", zap.String("remote", client.remote()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.stop()
				h.logger.Info("websocket client unregistered", zap.String("remote", client.remote()))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.logger.Warn("websocket client send buffer full, removing", zap.String("remote", client.remote()))
					client.stop()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// RegisterClient safely registers a new client to the hub
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.stop()
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastEvent sends a decoded event to all clients.
func (h *Hub) BroadcastEvent(event interface{}) {
	h.send(TypeEvent, event)
}

// BroadcastAlert sends a newly raised alert to all clients.
func (h *Hub) BroadcastAlert(alert interface{}) {
	h.send(TypeAlert, alert)
}

// BroadcastView sends a room view to all clients.
func (h *Hub) BroadcastView(view interface{}) {
	h.send(TypeView, view)
}

// send never blocks the caller; when the hub is backed up the message is dropped.
func (h *Hub) send(kind string, payload interface{}) {
	messageBytes, err := Encode(kind, payload)
	if err != nil {
		h.logger.Error("marshalling broadcast", zap.String("type", kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("broadcast queue full, dropping message", zap.String("type", kind))
	}
}

// Encode wraps payload in an Envelope.
func Encode(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: kind, Payload: payload})
}
