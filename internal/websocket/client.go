package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client frame types.
const (
	FrameOpenThread  = "open_thread"
	FrameCloseThread = "close_thread"
)

type clientFrame struct {
	Type          string `json:"type"`
	CounterpartID string `json:"counterpartId,omitempty"`
}

// Client is a middleman between the websocket connection and the hub. It is
// the relay's Session for one connection.
type Client struct {
	Hub *Hub

	// The profile this client represents and the id of this connection.
	UserID    uuid.UUID
	SessionID uuid.UUID

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; done signals
	// shutdown instead so Push cannot race a close.
	Send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, userID uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		Hub:       hub,
		UserID:    userID,
		SessionID: uuid.New(),
		Conn:      conn,
		Send:      make(chan []byte, hub.SessionBuffer),
		done:      make(chan struct{}),
	}
}

func (c *Client) ID() uuid.UUID      { return c.SessionID }
func (c *Client) OwnerID() uuid.UUID { return c.UserID }

// Push queues payload without blocking. It reports false when the client is
// gone or its queue is full.
func (c *Client) Push(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump reads client frames until the connection fails or the peer stops
// answering pings, then unregisters the session.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.shutdown()
		c.Conn.Close()
		slog.Debug("WebSocket ReadPump stopped", "owner", c.UserID, "session", c.SessionID)
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket read error", "owner", c.UserID, "error", err)
			}
			break
		}
		c.handleFrame(message)
	}
}

func (c *Client) handleFrame(message []byte) {
	var frame clientFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		slog.Debug("Ignoring malformed client frame", "owner", c.UserID, "error", err)
		return
	}

	switch frame.Type {
	case FrameOpenThread:
		counterpart, err := uuid.Parse(frame.CounterpartID)
		if err != nil {
			slog.Debug("Ignoring open_thread with invalid counterpart", "owner", c.UserID, "counterpartId", frame.CounterpartID)
			return
		}
		c.Hub.OpenThread(c, counterpart)
	case FrameCloseThread:
		c.Hub.OpenThread(c, uuid.Nil)
	default:
		slog.Debug("Ignoring unknown client frame", "owner", c.UserID, "type", frame.Type)
	}
}

// WritePump writes queued signals to the connection, one frame each, and
// keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		slog.Debug("WebSocket WritePump stopped", "owner", c.UserID, "session", c.SessionID)
	}()
	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Warn("WebSocket write error", "owner", c.UserID, "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("WebSocket ping failed", "owner", c.UserID, "error", err)
				c.shutdown()
				return
			}
		}
	}
}
