package actors

import (
	"encoding/json"
	"log/slog"

	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Session is one connected client of an owner. Push must not block; it
// reports false when the payload could not be queued.
type Session interface {
	ID() uuid.UUID
	OwnerID() uuid.UUID
	Push(payload []byte) bool
}

// Message types for NotificationRelayActor
type (
	SubscribeSessionMsg struct {
		Session Session
	}

	UnsubscribeSessionMsg struct {
		SessionID uuid.UUID
		OwnerID   uuid.UUID
	}

	// OpenThreadMsg records the thread a session is viewing. uuid.Nil means
	// no thread is open.
	OpenThreadMsg struct {
		SessionID     uuid.UUID
		OwnerID       uuid.UUID
		CounterpartID uuid.UUID
	}

	GetRelayStatsMsg struct{}
)

// RelayStats is the reply to GetRelayStatsMsg.
type RelayStats struct {
	Owners     int    `json:"owners"`
	Sessions   int    `json:"sessions"`
	Delivered  uint64 `json:"delivered"`
	Suppressed uint64 `json:"suppressed"`
	Dropped    uint64 `json:"dropped"`
}

// NewMessageSignal is the payload pushed to a session.
type NewMessageSignal struct {
	Type      string    `json:"type"`
	SenderID  uuid.UUID `json:"senderId"`
	MessageID uuid.UUID `json:"messageId"`
}

const SignalNewMessage = "new_message"

// Relay outcomes, as recorded in metrics.
const (
	OutcomeDelivered  = "delivered"
	OutcomeSuppressed = "suppressed"
	OutcomeDropped    = "dropped"
)

type sessionState struct {
	session    Session
	openThread uuid.UUID
}

// NotificationRelayActor tracks connected sessions per owner and pushes a
// transient signal when a message arrives for a thread the session is not
// looking at. Delivery is best effort.
type NotificationRelayActor struct {
	sessions map[uuid.UUID]map[uuid.UUID]*sessionState // OwnerID -> SessionID -> state
	metrics  *utils.MetricsCollector
	stats    RelayStats
}

func NewNotificationRelayActor(metrics *utils.MetricsCollector) actor.Actor {
	return &NotificationRelayActor{
		sessions: make(map[uuid.UUID]map[uuid.UUID]*sessionState),
		metrics:  metrics,
	}
}

func (a *NotificationRelayActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		slog.Info("Notification relay started", "pid", context.Self().Id)

	case *SubscribeSessionMsg:
		a.handleSubscribe(msg)

	case *UnsubscribeSessionMsg:
		a.handleUnsubscribe(msg)

	case *OpenThreadMsg:
		if state := a.lookup(msg.OwnerID, msg.SessionID); state != nil {
			state.openThread = msg.CounterpartID
		}

	case *models.MessageAppended:
		a.handleMessageAppended(msg)

	case *GetRelayStatsMsg:
		stats := a.stats
		stats.Owners = len(a.sessions)
		for _, owned := range a.sessions {
			stats.Sessions += len(owned)
		}
		context.Respond(&stats)

	case *actor.Stopping:
		slog.Info("Notification relay stopping", "sessions", a.sessionCount())
	}
}

func (a *NotificationRelayActor) handleSubscribe(msg *SubscribeSessionMsg) {
	owner := msg.Session.OwnerID()
	if _, ok := a.sessions[owner]; !ok {
		a.sessions[owner] = make(map[uuid.UUID]*sessionState)
	}
	a.sessions[owner][msg.Session.ID()] = &sessionState{session: msg.Session}
	slog.Debug("Session subscribed", "owner", owner, "session", msg.Session.ID(), "ownerSessions", len(a.sessions[owner]))
}

func (a *NotificationRelayActor) handleUnsubscribe(msg *UnsubscribeSessionMsg) {
	owned, ok := a.sessions[msg.OwnerID]
	if !ok {
		return
	}
	delete(owned, msg.SessionID)
	if len(owned) == 0 {
		delete(a.sessions, msg.OwnerID)
	}
	slog.Debug("Session unsubscribed", "owner", msg.OwnerID, "session", msg.SessionID)
}

func (a *NotificationRelayActor) handleMessageAppended(evt *models.MessageAppended) {
	if evt.Message == nil {
		return
	}
	owned := a.sessions[evt.Message.RecipientID]
	if len(owned) == 0 {
		return
	}

	payload, err := json.Marshal(&NewMessageSignal{
		Type:      SignalNewMessage,
		SenderID:  evt.Message.SenderID,
		MessageID: evt.Message.ID,
	})
	if err != nil {
		slog.Error("Failed to encode relay signal", "error", err)
		return
	}

	for _, state := range owned {
		switch {
		case state.openThread == evt.Message.SenderID:
			a.record(OutcomeSuppressed)
		case state.session.Push(payload):
			a.record(OutcomeDelivered)
		default:
			slog.Warn("Session queue full, signal dropped", "owner", evt.Message.RecipientID, "session", state.session.ID())
			a.record(OutcomeDropped)
		}
	}
}

func (a *NotificationRelayActor) record(outcome string) {
	switch outcome {
	case OutcomeDelivered:
		a.stats.Delivered++
	case OutcomeSuppressed:
		a.stats.Suppressed++
	case OutcomeDropped:
		a.stats.Dropped++
	}
	if a.metrics != nil {
		a.metrics.RecordRelaySignal(outcome)
	}
}

func (a *NotificationRelayActor) lookup(owner, session uuid.UUID) *sessionState {
	if owned, ok := a.sessions[owner]; ok {
		return owned[session]
	}
	return nil
}

func (a *NotificationRelayActor) sessionCount() int {
	n := 0
	for _, owned := range a.sessions {
		n += len(owned)
	}
	return n
}
