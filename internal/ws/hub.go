package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

type notification struct {
	userID  string
	payload []byte
}

type countRequest struct {
	userID string
	reply  chan int
}

// Hub tracks live connections per user and fans events out to them. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	// Registered clients, keyed by user id.
	clients map[string]map[*Client]bool

	// Events addressed to a single user.
	notify chan notification

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	count chan countRequest
	done  chan struct{}

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		notify:     make(chan notification, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.userID] = set
			}
			set[client] = true
		case client := <-h.unregister:
			h.remove(client)
		case n := <-h.notify:
			for client := range h.clients[n.userID] {
				select {
				case client.send <- n.payload:
				default:
					h.logger.Warn("dropping slow websocket client", "user_id", n.userID)
					h.remove(client)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.userID])
		}
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

// SendNotification queues an event for every connection of userID.
// Delivery is best effort.
func (h *Hub) SendNotification(userID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode notification", "error", err)
		return
	}
	select {
	case h.notify <- notification{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// Connections reports how many live connections userID has.
func (h *Hub) Connections(userID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
