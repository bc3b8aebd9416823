package api

import (
	"sync"

	"github.com/gin-gonic/gin"

	"vrfLottery/internal/raffle"
)

// StreamEvent is one server-sent event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client is a subscriber of the event stream.
type Client struct {
	ch chan StreamEvent
}

func (c *Client) Chan() <-chan StreamEvent {
	return c.ch
}

// Hub fans committed raffle events out to stream clients. Slow clients
// miss events rather than block the raffle.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	buffer  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{clients: make(map[*Client]struct{}), buffer: buffer}
}

func (h *Hub) Register() *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	client := &Client{ch: make(chan StreamEvent, h.buffer)}
	h.clients[client] = struct{}{}
	return client
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.ch)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.ch)
	}
}

// HandleEvent satisfies raffle.Listener.
func (h *Hub) HandleEvent(evt raffle.Event) {
	h.broadcast(StreamEvent{Type: string(evt.Kind), Data: eventPayload(evt)})
}

func (h *Hub) broadcast(evt StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func eventPayload(evt raffle.Event) gin.H {
	payload := gin.H{
		"raffle": evt.Raffle.Hex(),
		"round":  evt.Round,
		"time":   evt.Time.UTC(),
	}
	switch evt.Kind {
	case raffle.EventEntryAccepted:
		payload["player"] = evt.Player.Hex()
		payload["amount"] = evt.Amount.String()
	case raffle.EventRoundClosing:
		payload["request_id"] = evt.RequestID.String()
		payload["entrants"] = evt.Entrants
	case raffle.EventWinnerPicked:
		payload["winner"] = evt.Winner.Hex()
		payload["prize"] = evt.Amount.String()
		payload["request_id"] = evt.RequestID.String()
	}
	return payload
}
