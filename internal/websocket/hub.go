package websocket

import (
	"log/slog"

	"recruit-inbox/internal/engine/actors"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Hub connects WebSocket clients to the notification relay actor. Session
// bookkeeping lives in the relay; the hub only translates client lifecycle
// events into relay messages.
type Hub struct {
	root  *actor.RootContext
	relay *actor.PID

	// SessionBuffer is the capacity of each client's outbound queue.
	SessionBuffer int
}

func NewHub(root *actor.RootContext, relay *actor.PID, sessionBuffer int) *Hub {
	if sessionBuffer <= 0 {
		sessionBuffer = 256
	}
	return &Hub{root: root, relay: relay, SessionBuffer: sessionBuffer}
}

// Register subscribes the client's session with the relay.
func (h *Hub) Register(c *Client) {
	h.root.Send(h.relay, &actors.SubscribeSessionMsg{Session: c})
	slog.Info("WebSocket client registered", "owner", c.UserID, "session", c.SessionID)
}

// Unregister removes the client's session from the relay.
func (h *Hub) Unregister(c *Client) {
	h.root.Send(h.relay, &actors.UnsubscribeSessionMsg{SessionID: c.SessionID, OwnerID: c.UserID})
	slog.Info("WebSocket client unregistered", "owner", c.UserID, "session", c.SessionID)
}

// OpenThread records which thread the client is viewing; uuid.Nil clears it.
func (h *Hub) OpenThread(c *Client, counterpart uuid.UUID) {
	h.root.Send(h.relay, &actors.OpenThreadMsg{
		SessionID:     c.SessionID,
		OwnerID:       c.UserID,
		CounterpartID: counterpart,
	})
}
