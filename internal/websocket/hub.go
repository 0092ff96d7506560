package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/xelth-com/claimsync/internal/logging"
	"github.com/xelth-com/claimsync/internal/utils"
)

// Event types pushed to collaborators
const (
	EventSyncStatus   = "sync_status"
	EventConnectivity = "connectivity"
	EventCapture      = "capture"
)

// Event is one message broadcast to every connected client
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Command is a request sent by a client, such as SYNC_NOW
type Command struct {
	Type     string          `json:"type"`
	ClientID string          `json:"-"`
	MsgID    string          `json:"msgId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the set of active clients and broadcasts events
type Hub struct {
	// Registered clients map: client ID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	// closed when Run returns
	done chan struct{}

	onCommand func(Command) error
	dedup     *utils.Deduplicator
	logger    *log.Logger

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance. onCommand handles client commands and
// may be nil.
func NewHub(onCommand func(Command) error, logger *log.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		onCommand:  onCommand,
		dedup:      utils.NewDeduplicator(5 * time.Minute),
		logger:     logging.OrDefault(logger),
	}
}

// Run starts the hub's main loop. It closes every client when ctx ends.
// Only the hub closes a client's send channel, always while holding mu.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Printf("📱 Client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.logger.Printf("📴 Client disconnected: %s", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// too slow to keep up
					delete(h.clients, id)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues an event for every client. Events are dropped when the
// hub is backed up.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	msg, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Printf("Error marshaling %s event: %v", eventType, err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Printf("⚠️ Dropped %s event, hub backed up", eventType)
	}
}

// deliver queues msg for c unless the hub already dropped it
func (h *Hub) deliver(c *Client, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.ID] != c {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) handleCommand(cmd Command) error {
	if h.onCommand == nil {
		return nil
	}
	return h.onCommand(cmd)
}
