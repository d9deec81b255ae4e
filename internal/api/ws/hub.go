package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/observability"
	"github.com/your-org/doorgate/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected app, optionally filtered to a single owner.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	ownerID uuid.UUID
}

type message struct {
	ownerID uuid.UUID
	data    []byte
}

// Hub fans live visit events out to connected WebSocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "owner", client.ownerID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.ownerID != uuid.Nil && client.ownerID != msg.ownerID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// slow client
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client; h.mu must be held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	observability.WSConnections.Dec()
}

// BroadcastVisitEvent queues a visit event for the owner's clients.
func (h *Hub) BroadcastVisitEvent(ev models.VisitEvent) {
	data, err := json.Marshal(dto.NewWSEvent(ev))
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{ownerID: ev.OwnerID, data: data}:
	default:
		slog.Warn("ws broadcast queue full, dropping event", "visit", ev.VisitID)
	}
}

// HandleVisitEvent adapts the hub to event consumers.
func (h *Hub) HandleVisitEvent(_ context.Context, ev models.VisitEvent) error {
	h.BroadcastVisitEvent(ev)
	return nil
}

// HandleWS upgrades the request. Token callers only receive their own
// events; API key callers may pass ?owner_id= or receive everything.
func (h *Hub) HandleWS(c *gin.Context) {
	var ownerID uuid.UUID
	if v := c.Query("owner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
			return
		}
		ownerID = id
	}
	if id, ok := auth.OwnerID(c); ok {
		if ownerID != uuid.Nil && ownerID != id {
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed for this owner"})
			return
		}
		ownerID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 64),
		ownerID: ownerID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Reads only detect disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
