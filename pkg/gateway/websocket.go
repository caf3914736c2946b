package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON rendering of an events.Event pushed down a
// WebSocket connection.
type wireEvent struct {
	Kind      events.Kind `json:"kind"`
	Symbol    string      `json:"symbol,omitempty"`
	Sequence  uint64      `json:"sequence"`
	Timestamp int64       `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// wsSubscribeRequest is sent by a client to change its symbol/account
// interest set, mirroring the reference module's subscribe/unsubscribe
// envelope.
type wsSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe" | "account"
	Symbols  []string `json:"symbols,omitempty"`
	Account  string   `json:"account,omitempty"`
}

// wsHub bridges every live WebSocket connection to the shared events.Hub:
// one events.Subscriber per connection, fanned out by the hub's own
// publish loop rather than a second broadcast channel, so a slow client
// degrades to a Lagged notice instead of stalling publication for
// everyone else.
type wsHub struct {
	log    *zap.Logger
	events *events.Hub

	mu      sync.Mutex
	clients map[string]*wsClient
}

func newWSHub(log *zap.Logger, hub *events.Hub) *wsHub {
	return &wsHub{log: log, events: hub, clients: make(map[string]*wsClient)}
}

// run is a no-op pump kept for symmetry with the reference module's
// Hub.Run: wsHub has no central broadcast channel to service since
// events.Hub already fans out directly to each subscriber's channel.
func (h *wsHub) run() {}

type wsClient struct {
	id   string
	conn *websocket.Conn
	sub  *events.Subscriber
	hub  *wsHub
}

func (h *wsHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sub := h.events.Register(id)
	c := &wsClient{id: id, conn: conn, sub: sub, hub: h}

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) close() {
	c.hub.mu.Lock()
	delete(c.hub.clients, c.id)
	c.hub.mu.Unlock()
	c.hub.events.Unregister(c.id)
	c.conn.Close()
}

func (c *wsClient) readPump() {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("ws read error", zap.Error(err))
			}
			return
		}

		var req wsSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}
		switch req.Op {
		case "subscribe":
			for _, s := range req.Symbols {
				c.sub.Subscribe(s)
			}
		case "unsubscribe":
			for _, s := range req.Symbols {
				c.sub.Unsubscribe(s)
			}
		case "account":
			c.sub.SetAccount(req.Account)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case e, ok := <-c.sub.Events():
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			body, err := json.Marshal(wireEvent{
				Kind:      e.Kind,
				Symbol:    e.Symbol,
				Sequence:  e.Sequence,
				Timestamp: e.Timestamp.UnixMilli(),
				Payload:   e.Payload,
			})
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
