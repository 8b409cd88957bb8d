package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	EventNewMessage          = "new_message"
	EventConversationUpdated = "conversation_updated"
	EventMessageStatus       = "message_status"
	EventCampaignUpdated     = "campaign_updated"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Publisher fans an event out to every client connected for a tenant.
// Delivery is best effort; Publish never blocks on slow consumers.
type Publisher interface {
	Publish(tenantID, event string, payload interface{})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // auth happens on the bearer token, not the origin
	},
}

type Client struct {
	hub    *Hub
	tenant string
	conn   *websocket.Conn
	send   chan []byte
}

type envelope struct {
	tenant  string
	payload []byte
}

// Hub keeps one room of clients per tenant.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns room membership until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.tenant]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.tenant] = room
			}
			room[client] = true
			h.mu.Unlock()
			log.Debug().Str("tenant_id", client.tenant).Msg("WebSocket client registered")
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			log.Debug().Str("tenant_id", client.tenant).Msg("WebSocket client unregistered")
		case ev := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[ev.tenant] {
				select {
				case client.send <- ev.payload:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client from its room. Callers hold mu.
func (h *Hub) remove(c *Client) {
	room := h.rooms[c.tenant]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.tenant)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for c := range room {
			h.remove(c)
		}
	}
}

type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (h *Hub) Publish(tenantID, event string, payload interface{}) {
	data, err := json.Marshal(WSEvent{Type: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Error marshaling WS event")
		return
	}

	select {
	case h.broadcast <- envelope{tenant: tenantID, payload: data}:
	default:
		log.Warn().Str("tenant_id", tenantID).Str("event", event).Msg("WebSocket broadcast queue full, event dropped")
	}
}

// Clients reports how many connections a tenant's room holds.
func (h *Hub) Clients(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tenantID])
}

// ServeWs upgrades the request and joins the connection to tenantID's room.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	client := &Client{hub: h, tenant: tenantID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// clients only send pongs and close frames
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
