// Package inbox implements the direct messaging engine: the message, read
// state and hidden thread stores, the thread aggregator, participant
// bootstrap and the service surface the transport calls.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"recruit-inbox/internal/database"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
)

// EventPublisher receives MessageAppended events. protoactor's
// *eventstream.EventStream satisfies it.
type EventPublisher interface {
	Publish(evt interface{})
}

// MessageStore is the append-only log of direct messages.
type MessageStore struct {
	repo       database.MessageRepository
	clock      utils.Clock
	publisher  EventPublisher
	maxContent int
}

func NewMessageStore(repo database.MessageRepository, clock utils.Clock, publisher EventPublisher, maxContentLength int) *MessageStore {
	return &MessageStore{
		repo:       repo,
		clock:      clock,
		publisher:  publisher,
		maxContent: maxContentLength,
	}
}

// NormalizeContent trims surrounding whitespace and enforces the length
// bound, counted in runes.
func NormalizeContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", utils.NewInvalidContentError("message is empty")
	}
	if n := utf8.RuneCountInString(trimmed); maxLength > 0 && n > maxLength {
		return "", utils.NewInvalidContentError(fmt.Sprintf("message is %d characters, limit is %d", n, maxLength))
	}
	return trimmed, nil
}

// Append persists a message from sender to recipient and publishes a
// MessageAppended event once it is stored.
func (s *MessageStore) Append(ctx context.Context, senderID, recipientID uuid.UUID, content string) (*models.Message, error) {
	if senderID == recipientID {
		slog.Warn("Rejected self-addressed message", "sender", senderID)
		return nil, utils.NewSelfMessageError()
	}
	body, err := NormalizeContent(content, s.maxContent)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInternal, "failed to generate message id", err)
	}
	msg := &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     body,
		CreatedAt:   s.clock.Now(),
	}

	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, storeError("insert message", err)
	}

	if s.publisher != nil {
		s.publisher.Publish(&models.MessageAppended{Message: msg})
	}
	return msg, nil
}

// ListBetween returns every message exchanged between a and b, oldest first.
func (s *MessageStore) ListBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	msgs, err := s.repo.ListMessagesBetween(ctx, a, b)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	return msgs, nil
}

func (s *MessageStore) threadHeads(ctx context.Context, owner uuid.UUID) ([]*models.ThreadHead, error) {
	heads, err := s.repo.ThreadHeads(ctx, owner)
	if err != nil {
		return nil, storeError("load thread heads", err)
	}
	return heads, nil
}

// storeError leaves AppErrors and context errors untouched and classifies
// everything else as a transient backend failure.
func storeError(operation string, err error) error {
	if utils.ErrorCode(err) != "" || ctxError(err) {
		return err
	}
	return utils.NewStoreUnavailableError(operation, err)
}
