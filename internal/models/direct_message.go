package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single directed message between two profiles. Messages are
// append-only: once stored they are never edited or deleted.
type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	SenderID    uuid.UUID `json:"senderId" db:"sender_id"`
	RecipientID uuid.UUID `json:"recipientId" db:"recipient_id"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// CounterpartOf returns the participant of the message that is not owner.
func (m *Message) CounterpartOf(owner uuid.UUID) uuid.UUID {
	if m.SenderID == owner {
		return m.RecipientID
	}
	return m.SenderID
}

// MessageAppended is published on the actor system's event stream after a
// message has been persisted.
type MessageAppended struct {
	Message *Message
}
