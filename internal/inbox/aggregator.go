package inbox

import (
	"bytes"
	"context"
	"sort"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ThreadAggregator derives per-owner thread lists from the message log, the
// read states and the hide markers. It holds no state of its own.
type ThreadAggregator struct {
	messages          *MessageStore
	reads             *ReadStateStore
	hidden            *HiddenThreadStore
	profiles          profiles.Directory
	resurrectPolicy   string
	lookupConcurrency int
}

func NewThreadAggregator(messages *MessageStore, reads *ReadStateStore, hidden *HiddenThreadStore, dir profiles.Directory, cfg *config.InboxConfig) *ThreadAggregator {
	concurrency := cfg.ProfileLookupConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ThreadAggregator{
		messages:          messages,
		reads:             reads,
		hidden:            hidden,
		profiles:          dir,
		resurrectPolicy:   cfg.HideResurrection,
		lookupConcurrency: concurrency,
	}
}

// stillHidden applies the hide resurrection policy to one thread head.
func stillHidden(policy string, head *models.ThreadHead, hidden *models.HiddenThread) bool {
	if hidden == nil {
		return false
	}
	switch policy {
	case config.HideResurrectAny:
		return !head.LastMessage.CreatedAt.After(hidden.ClearedAt)
	case config.HideResurrectIncoming:
		return head.LastIncomingAt == nil || !head.LastIncomingAt.After(hidden.ClearedAt)
	default:
		return true
	}
}

// ListThreads returns owner's visible threads, newest first.
func (a *ThreadAggregator) ListThreads(ctx context.Context, owner uuid.UUID) ([]*models.Thread, error) {
	heads, err := a.messages.threadHeads(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		return []*models.Thread{}, nil
	}

	readAt, err := a.reads.ListForOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	hidden, err := a.hidden.ListForOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.ThreadHead, 0, len(heads))
	for _, head := range heads {
		if head.LastMessage == nil || stillHidden(a.resurrectPolicy, head, hidden[head.CounterpartID]) {
			continue
		}
		candidates = append(candidates, head)
	}

	summaries, err := a.resolveCounterparts(ctx, candidates)
	if err != nil {
		return nil, err
	}

	threads := make([]*models.Thread, 0, len(candidates))
	for i, head := range candidates {
		if summaries[i] == nil {
			continue
		}
		thread := &models.Thread{
			CounterpartID:  head.CounterpartID,
			Counterpart:    summaries[i],
			LastMessage:    head.LastMessage,
			LastMessageAt:  head.LastMessage.CreatedAt,
			LastIncomingAt: head.LastIncomingAt,
		}
		if head.LastIncomingAt != nil {
			lastRead, ok := readAt[head.CounterpartID]
			thread.HasUnread = !ok || head.LastIncomingAt.After(lastRead)
		}
		threads = append(threads, thread)
	}

	sort.Slice(threads, func(i, j int) bool {
		ti, tj := threads[i], threads[j]
		if !ti.LastMessageAt.Equal(tj.LastMessageAt) {
			return ti.LastMessageAt.After(tj.LastMessageAt)
		}
		return bytes.Compare(ti.LastMessage.ID[:], tj.LastMessage.ID[:]) < 0
	})
	return threads, nil
}

// resolveCounterparts looks up every head's counterpart with bounded
// concurrency. Unresolvable counterparts leave a nil entry.
func (a *ThreadAggregator) resolveCounterparts(ctx context.Context, heads []*models.ThreadHead) ([]*models.ProfileSummary, error) {
	summaries := make([]*models.ProfileSummary, len(heads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.lookupConcurrency)

	for i, head := range heads {
		i, head := i, head
		g.Go(func() error {
			profile, err := a.profiles.Lookup(gctx, head.CounterpartID)
			if utils.IsErrorCode(err, utils.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			summaries[i] = profile.Summary()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError("lookup profiles", err)
	}
	return summaries, nil
}

// GetThread returns the full conversation between owner and counterpart. It
// does not mark anything read.
func (a *ThreadAggregator) GetThread(ctx context.Context, owner, counterpart uuid.UUID) (*models.ThreadView, error) {
	if owner == counterpart {
		return nil, utils.NewNotAuthorizedError()
	}

	profile, err := a.profiles.Lookup(ctx, counterpart)
	if utils.IsErrorCode(err, utils.ErrNotFound) {
		return nil, utils.NewNotAuthorizedError()
	}
	if err != nil {
		return nil, storeError("lookup profile", err)
	}

	msgs, err := a.messages.ListBetween(ctx, owner, counterpart)
	if err != nil {
		return nil, err
	}
	return &models.ThreadView{Counterpart: profile.Summary(), Messages: msgs}, nil
}

// UnreadThreadCount counts ListThreads entries with unread messages.
func (a *ThreadAggregator) UnreadThreadCount(ctx context.Context, owner uuid.UUID) (int, error) {
	threads, err := a.ListThreads(ctx, owner)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range threads {
		if t.HasUnread {
			count++
		}
	}
	return count, nil
}
