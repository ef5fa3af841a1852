package chathub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"pairchat/backend/internal/config"
	"pairchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = config.MaxMediaPayloadBytes + 64<<10
	sendBufferSize = 256
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	Conn   *websocket.Conn
	Router *Router

	handle    string
	send      chan models.ServerEvent
	log       *slog.Logger
	closeOnce sync.Once

	mu      sync.RWMutex
	profile models.Profile
	roomID  string
}

// NewWebSocketClient wraps conn. profile may carry a fingerprint and
// language known from the upgrade request.
func NewWebSocketClient(conn *websocket.Conn, router *Router, profile models.Profile, log *slog.Logger) *WebSocketClient {
	handle := uuid.New().String()
	return &WebSocketClient{
		Conn:    conn,
		Router:  router,
		handle:  handle,
		send:    make(chan models.ServerEvent, sendBufferSize),
		log:     log.With("handle", handle),
		profile: profile,
	}
}

func (c *WebSocketClient) GetHandle() string { return c.handle }

func (c *WebSocketClient) GetProfile() models.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

func (c *WebSocketClient) SetProfile(p models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
}

func (c *WebSocketClient) GetRoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

func (c *WebSocketClient) SetRoomID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

func (c *WebSocketClient) GetSendChannel() chan<- models.ServerEvent { return c.send }

// Run registers the client and starts its pumps.
func (c *WebSocketClient) Run() {
	c.Router.Connect(c)
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which stops writePump. Safe to call twice.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump decodes inbound frames and routes them until the connection
// fails, then disconnects the client from the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Router.Disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "err", err)
			}
			return
		}

		var ev models.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Debug("invalid frame", "err", err)
			continue
		}
		_ = c.Router.HandleEvent(context.Background(), c, ev)
	}
}

// writePump serializes events from the send channel onto the socket and
// keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				c.log.Debug("websocket write failed", "type", ev.Type, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
