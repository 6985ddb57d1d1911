package inbox

import (
	"context"
	"errors"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
)

func ctxError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ReadStateStore tracks the last time an owner read each counterpart.
type ReadStateStore struct {
	repo      database.ReadStateRepository
	clock     utils.Clock
	clockSkew time.Duration
}

func NewReadStateStore(repo database.ReadStateRepository, clock utils.Clock, clockSkew time.Duration) *ReadStateStore {
	return &ReadStateStore{repo: repo, clock: clock, clockSkew: clockSkew}
}

// MarkRead records that owner has read counterpart's messages up to at.
// Repeated calls never move the stored value backwards.
func (s *ReadStateStore) MarkRead(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.ReadState, error) {
	if owner == counterpart {
		return nil, utils.NewNotAuthorizedError()
	}
	if at.IsZero() || at.After(s.clock.Now().Add(s.clockSkew)) {
		return nil, utils.NewAppError(utils.ErrInvalidTimestamp, "read timestamp is outside the accepted range", nil)
	}

	state, err := s.repo.UpsertReadState(ctx, owner, counterpart, at.UTC())
	if err != nil {
		return nil, storeError("mark read", err)
	}
	return state, nil
}

// LastReadAt reports owner's read watermark for counterpart, if any.
func (s *ReadStateStore) LastReadAt(ctx context.Context, owner, counterpart uuid.UUID) (time.Time, bool, error) {
	state, err := s.repo.GetReadState(ctx, owner, counterpart)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storeError("get read state", err)
	}
	return state.LastReadAt, true, nil
}

func (s *ReadStateStore) ListForOwner(ctx context.Context, owner uuid.UUID) (map[uuid.UUID]time.Time, error) {
	states, err := s.repo.ListReadStates(ctx, owner)
	if err != nil {
		return nil, storeError("list read states", err)
	}
	out := make(map[uuid.UUID]time.Time, len(states))
	for _, st := range states {
		out[st.CounterpartID] = st.LastReadAt
	}
	return out, nil
}

// HiddenThreadStore keeps soft-hide markers. Hiding never touches messages.
type HiddenThreadStore struct {
	repo     database.HiddenThreadRepository
	messages *MessageStore
	policy   string
}

// NewHiddenThreadStore reads thread heads from messages to decide whether a
// newer message has resurrected a hidden thread under policy.
func NewHiddenThreadStore(repo database.HiddenThreadRepository, messages *MessageStore, policy string) *HiddenThreadStore {
	return &HiddenThreadStore{repo: repo, messages: messages, policy: policy}
}

func (s *HiddenThreadStore) Hide(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.HiddenThread, error) {
	if owner == counterpart {
		return nil, utils.NewNotAuthorizedError()
	}
	hidden, err := s.repo.UpsertHiddenThread(ctx, owner, counterpart, at.UTC())
	if err != nil {
		return nil, storeError("hide thread", err)
	}
	return hidden, nil
}

// IsHidden reports whether the thread is currently left out of owner's
// list: a hide marker exists and no message has resurrected the thread.
func (s *HiddenThreadStore) IsHidden(ctx context.Context, owner, counterpart uuid.UUID) (bool, error) {
	marker, err := s.repo.GetHiddenThread(ctx, owner, counterpart)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError("get hidden thread", err)
	}
	if s.policy == config.HideResurrectNever || s.messages == nil {
		return true, nil
	}

	heads, err := s.messages.threadHeads(ctx, owner)
	if err != nil {
		return false, err
	}
	for _, head := range heads {
		if head.CounterpartID == counterpart && head.LastMessage != nil {
			return stillHidden(s.policy, head, marker), nil
		}
	}
	return true, nil
}

func (s *HiddenThreadStore) ListForOwner(ctx context.Context, owner uuid.UUID) (map[uuid.UUID]*models.HiddenThread, error) {
	hidden, err := s.repo.ListHiddenThreads(ctx, owner)
	if err != nil {
		return nil, storeError("list hidden threads", err)
	}
	out := make(map[uuid.UUID]*models.HiddenThread, len(hidden))
	for _, h := range hidden {
		out[h.CounterpartID] = h
	}
	return out, nil
}
