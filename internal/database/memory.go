package database

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
)

type pairKey struct {
	owner       uuid.UUID
	counterpart uuid.UUID
}

// conversationKey names the unordered pair of a conversation.
func conversationKey(a, b uuid.UUID) pairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return pairKey{a, b}
}

// MemoryDB keeps every table in process. It backs local development, the
// simulator and tests. Messages are indexed per conversation and thread
// heads are maintained on insert, so reads never scan the whole log.
type MemoryDB struct {
	mu            sync.RWMutex
	conversations map[pairKey][]*models.Message
	heads         map[uuid.UUID]map[uuid.UUID]*models.ThreadHead // owner -> counterpart -> head
	messageIDs    map[uuid.UUID]struct{}
	readStates   map[pairKey]*models.ReadState
	hidden       map[pairKey]*models.HiddenThread
	participants map[pairKey]time.Time
	profiles     map[uuid.UUID]*models.Profile
}

var _ DBAdapter = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		conversations: make(map[pairKey][]*models.Message),
		heads:         make(map[uuid.UUID]map[uuid.UUID]*models.ThreadHead),
		messageIDs:    make(map[uuid.UUID]struct{}),
		readStates:   make(map[pairKey]*models.ReadState),
		hidden:       make(map[pairKey]*models.HiddenThread),
		participants: make(map[pairKey]time.Time),
		profiles:     make(map[uuid.UUID]*models.Profile),
	}
}

func (m *MemoryDB) Resolution() time.Duration { return time.Microsecond }

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

// PutProfile inserts or replaces a profile.
func (m *MemoryDB) PutProfile(profile *models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.ID] = &cp
}

// messageLess orders by creation time, then id.
func messageLess(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func (m *MemoryDB) InsertMessage(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.SenderID == msg.RecipientID {
		return utils.NewSelfMessageError()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messageIDs[msg.ID]; exists {
		return utils.NewAppError(utils.ErrInvalidInput, "duplicate message id", nil)
	}
	cp := *msg
	key := conversationKey(msg.SenderID, msg.RecipientID)
	m.conversations[key] = append(m.conversations[key], &cp)
	m.messageIDs[msg.ID] = struct{}{}
	m.advanceHead(msg.SenderID, msg.RecipientID, &cp, false)
	m.advanceHead(msg.RecipientID, msg.SenderID, &cp, true)
	return nil
}

// advanceHead folds msg into owner's head for counterpart. Caller holds mu.
func (m *MemoryDB) advanceHead(owner, counterpart uuid.UUID, msg *models.Message, incoming bool) {
	owned, ok := m.heads[owner]
	if !ok {
		owned = make(map[uuid.UUID]*models.ThreadHead)
		m.heads[owner] = owned
	}
	head, ok := owned[counterpart]
	if !ok {
		head = &models.ThreadHead{CounterpartID: counterpart}
		owned[counterpart] = head
	}
	if head.LastMessage == nil || messageLess(head.LastMessage, msg) {
		head.LastMessage = msg
	}
	if incoming && (head.LastIncomingAt == nil || msg.CreatedAt.After(*head.LastIncomingAt)) {
		at := msg.CreatedAt
		head.LastIncomingAt = &at
	}
}

func (m *MemoryDB) ListMessagesBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	stored := m.conversations[conversationKey(a, b)]
	result := make([]*models.Message, 0, len(stored))
	for _, msg := range stored {
		cp := *msg
		result = append(result, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return messageLess(result[i], result[j]) })
	return result, nil
}

func (m *MemoryDB) ThreadHeads(ctx context.Context, owner uuid.UUID) ([]*models.ThreadHead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	owned := m.heads[owner]
	result := make([]*models.ThreadHead, 0, len(owned))
	for _, head := range owned {
		msg := *head.LastMessage
		cp := &models.ThreadHead{CounterpartID: head.CounterpartID, LastMessage: &msg}
		if head.LastIncomingAt != nil {
			at := *head.LastIncomingAt
			cp.LastIncomingAt = &at
		}
		result = append(result, cp)
	}
	return result, nil
}

func (m *MemoryDB) UpsertReadState(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.ReadState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{owner, counterpart}
	state, ok := m.readStates[key]
	if !ok {
		state = &models.ReadState{OwnerID: owner, CounterpartID: counterpart, LastReadAt: at}
		m.readStates[key] = state
	} else if at.After(state.LastReadAt) {
		state.LastReadAt = at
	}
	cp := *state
	return &cp, nil
}

func (m *MemoryDB) GetReadState(ctx context.Context, owner, counterpart uuid.UUID) (*models.ReadState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.readStates[pairKey{owner, counterpart}]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "read state not found", nil)
	}
	cp := *state
	return &cp, nil
}

func (m *MemoryDB) ListReadStates(ctx context.Context, owner uuid.UUID) ([]*models.ReadState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	states := []*models.ReadState{}
	for key, state := range m.readStates {
		if key.owner == owner {
			cp := *state
			states = append(states, &cp)
		}
	}
	return states, nil
}

func (m *MemoryDB) UpsertHiddenThread(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.HiddenThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{owner, counterpart}
	hidden, ok := m.hidden[key]
	if !ok {
		hidden = &models.HiddenThread{OwnerID: owner, CounterpartID: counterpart, HiddenAt: at, ClearedAt: at}
		m.hidden[key] = hidden
	} else {
		if at.After(hidden.HiddenAt) {
			hidden.HiddenAt = at
		}
		if at.After(hidden.ClearedAt) {
			hidden.ClearedAt = at
		}
	}
	cp := *hidden
	return &cp, nil
}

func (m *MemoryDB) GetHiddenThread(ctx context.Context, owner, counterpart uuid.UUID) (*models.HiddenThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	hidden, ok := m.hidden[pairKey{owner, counterpart}]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "hidden thread not found", nil)
	}
	cp := *hidden
	return &cp, nil
}

func (m *MemoryDB) ListHiddenThreads(ctx context.Context, owner uuid.UUID) ([]*models.HiddenThread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []*models.HiddenThread{}
	for key, hidden := range m.hidden {
		if key.owner == owner {
			cp := *hidden
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryDB) EnsureParticipantPair(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	created := false
	for _, key := range []pairKey{{owner, counterpart}, {counterpart, owner}} {
		if _, ok := m.participants[key]; !ok {
			m.participants[key] = at
			created = true
		}
	}
	return created, nil
}

// ParticipantCount reports how many participant rows exist.
func (m *MemoryDB) ParticipantCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.participants)
}

func (m *MemoryDB) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[id]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "profile not found", nil)
	}
	cp := *profile
	return &cp, nil
}
