package models

import (
	"time"

	"github.com/google/uuid"
)

// ReadState is the last moment an owner is known to have viewed the messages
// of one counterpart. One row per ordered (owner, counterpart) pair.
type ReadState struct {
	OwnerID       uuid.UUID `json:"ownerId" db:"owner_id"`
	CounterpartID uuid.UUID `json:"counterpartId" db:"counterpart_id"`
	LastReadAt    time.Time `json:"lastReadAt" db:"last_read_at"`
}

// HiddenThread marks a thread as removed from the owner's inbox view. It is
// not a block and does not delete any message.
//
// ClearedAt is the watermark: messages created at or before it belong to the
// hidden part of the thread.
type HiddenThread struct {
	OwnerID       uuid.UUID `json:"ownerId" db:"owner_id"`
	CounterpartID uuid.UUID `json:"counterpartId" db:"counterpart_id"`
	HiddenAt      time.Time `json:"hiddenAt" db:"hidden_at"`
	ClearedAt     time.Time `json:"clearedAt" db:"cleared_at"`
}

// ParticipantPair records that owner and counterpart have been registered as
// conversation participants.
type ParticipantPair struct {
	OwnerID       uuid.UUID `json:"ownerId" db:"owner_id"`
	CounterpartID uuid.UUID `json:"counterpartId" db:"counterpart_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
