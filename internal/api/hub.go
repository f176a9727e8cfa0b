package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trading-alerts/internal/notification"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	readLimit    = 4096
	clientBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans app notifications out to websocket clients.
type Hub struct {
	inbox *notification.Inbox
	log   *logrus.Entry

	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates a hub. inbox may be nil; it is used to replay missed
// notifications to reconnecting clients.
func NewHub(inbox *notification.Inbox, log *logrus.Entry) *Hub {
	return &Hub{
		inbox:   inbox,
		log:     log.WithField("component", "ws"),
		clients: make(map[*Client]bool),
	}
}

type envelope struct {
	Type         string                     `json:"type"`
	Notification *notification.Notification `json:"notification,omitempty"`
	Replay       bool                       `json:"replay,omitempty"`
}

// Broadcast sends n to every client. Slow clients drop the message.
func (h *Hub) Broadcast(n notification.Notification) {
	msg, err := json.Marshal(envelope{Type: "notification", Notification: &n})
	if err != nil {
		h.log.WithError(err).Error("marshal notification")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ServeWS upgrades the request and registers the client. The optional
// after query parameter replays inbox entries with a greater seq.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, clientBuffer), hub: h}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", count).Info("ws client connected")

	if after := c.Query("after"); after != "" && h.inbox != nil {
		if seq, err := strconv.ParseInt(after, 10, 64); err == nil {
			client.replay(h.inbox.Since(seq))
		}
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.WithField("clients", count).Info("ws client disconnected")
}
