package inbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"recruit-inbox/internal/database"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	detachedCallTimeout = 5 * time.Second

	// defaultEnsuredLimit bounds the remembered pairs. Forgetting a pair only
	// costs one more idempotent upsert.
	defaultEnsuredLimit = 100_000
)

// ConversationBootstrap registers both participants of a conversation
// before its first message is accepted.
type ConversationBootstrap struct {
	repo     database.ParticipantRepository
	profiles profiles.Directory
	clock    utils.Clock

	group        singleflight.Group
	mu           sync.Mutex
	ensured      map[string]struct{} // "owner:counterpart"
	ensuredLimit int
}

func NewConversationBootstrap(repo database.ParticipantRepository, dir profiles.Directory, clock utils.Clock) *ConversationBootstrap {
	return &ConversationBootstrap{
		repo:         repo,
		profiles:     dir,
		clock:        clock,
		ensured:      make(map[string]struct{}),
		ensuredLimit: defaultEnsuredLimit,
	}
}

// EnsureParticipants resolves counterpart and makes sure the participant
// rows for the pair exist. Safe to call any number of times.
func (b *ConversationBootstrap) EnsureParticipants(ctx context.Context, owner, counterpart uuid.UUID) error {
	if owner == counterpart {
		return utils.NewSelfMessageError()
	}

	if _, err := b.profiles.Lookup(ctx, counterpart); err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return utils.NewCounterpartNotFoundError()
		}
		return storeError("lookup counterpart", err)
	}

	key := owner.String() + ":" + counterpart.String()
	if b.isEnsured(key) {
		return nil
	}

	ch := b.group.DoChan(key, func() (interface{}, error) {
		regCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedCallTimeout)
		defer cancel()

		created, err := b.repo.EnsureParticipantPair(regCtx, owner, counterpart, b.clock.Now())
		if err != nil {
			return nil, storeError("ensure participants", err)
		}
		if created {
			slog.Info("Registered conversation participants", "owner", owner, "counterpart", counterpart)
		}
		b.remember(key)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (b *ConversationBootstrap) isEnsured(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ensured[key]
	return ok
}

// remember records key, starting over once the set reaches its limit.
func (b *ConversationBootstrap) remember(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ensured) >= b.ensuredLimit {
		b.ensured = make(map[string]struct{})
	}
	b.ensured[key] = struct{}{}
}

func (b *ConversationBootstrap) ensuredCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ensured)
}
