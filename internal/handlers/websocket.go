package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Token auth happens in middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushMessage is the envelope every server push uses.
type pushMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  int64          `json:"sent_at"`
}

// Hub tracks connected players and fans server events out to them. A
// player may hold several connections (multiple tabs); each gets every
// message. Implements the push interface the services notify through.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*wsClient]bool)}
}

// NotifyUser pushes one event to every connection uid holds. Players
// who are offline simply miss the push; state is always recoverable
// from the status and game endpoints.
func (h *Hub) NotifyUser(uid, kind string, payload map[string]any) {
	raw, err := json.Marshal(pushMessage{Type: kind, Payload: payload, SentAt: time.Now().UnixMilli()})
	if err != nil {
		log.Printf("WS_HUB: failed to marshal %s push: %v", kind, err)
		return
	}

	h.mu.RLock()
	conns := h.clients[uid]
	for c := range conns {
		select {
		case c.send <- raw:
		default:
			// Slow consumer; drop the message, not the connection.
		}
	}
	h.mu.RUnlock()
}

// PostActivity pushes one shared event to a group of players.
func (h *Hub) PostActivity(uids []string, kind string, payload map[string]any) {
	for _, uid := range uids {
		h.NotifyUser(uid, kind, payload)
	}
}

func (h *Hub) add(uid string, c *wsClient) {
	h.mu.Lock()
	if h.clients[uid] == nil {
		h.clients[uid] = make(map[*wsClient]bool)
	}
	h.clients[uid][c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(uid string, c *wsClient) {
	h.mu.Lock()
	if conns := h.clients[uid]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, uid)
		}
	}
	h.mu.Unlock()
	close(c.send)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ServeWS upgrades an authenticated request into a push connection.
func (h *Hub) ServeWS(c *gin.Context) {
	uid := c.GetString("user_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WS_HUB: upgrade failed for %s: %v", uid, err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.add(uid, client)
	log.Printf("WS_HUB: %s connected", uid)

	go h.writePump(client)
	go h.readPump(uid, client)
}

// readPump drains the connection. Client frames carry nothing the
// server acts on; the read loop exists to process control frames and
// detect the close.
func (h *Hub) readPump(uid string, c *wsClient) {
	defer func() {
		h.remove(uid, c)
		c.conn.Close()
		log.Printf("WS_HUB: %s disconnected", uid)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS_HUB: read error for %s: %v", uid, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
