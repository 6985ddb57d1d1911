package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadHead is the per-counterpart pre-aggregate a backend computes for an
// owner: the newest message exchanged with the counterpart and the time of
// the newest message the owner received from them.
type ThreadHead struct {
	CounterpartID  uuid.UUID
	LastMessage    *Message
	LastIncomingAt *time.Time
}

// Thread is the derived, never persisted, view of an owner's conversation
// with one counterpart.
type Thread struct {
	CounterpartID  uuid.UUID       `json:"counterpartId"`
	Counterpart    *ProfileSummary `json:"counterpart"`
	LastMessage    *Message        `json:"lastMessage"`
	LastMessageAt  time.Time       `json:"lastMessageAt"`
	LastIncomingAt *time.Time      `json:"lastIncomingAt,omitempty"`
	HasUnread      bool            `json:"hasUnread"`
}

// ThreadView is the full message history with one counterpart.
type ThreadView struct {
	Counterpart *ProfileSummary `json:"counterpart"`
	Messages    []*Message      `json:"messages"`
}
