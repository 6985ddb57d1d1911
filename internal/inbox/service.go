package inbox

import (
	"context"
	"log/slog"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Operation names used for metrics and logs.
const (
	OpSendMessage    = "send_message"
	OpListThreads    = "list_threads"
	OpGetThread      = "get_thread"
	OpMarkThreadRead = "mark_thread_read"
	OpHideThread     = "hide_thread"
	OpGetUnreadCount = "get_unread_count"
)

// Service is the surface exposed to the transport. The owner is always the
// authenticated caller.
type Service struct {
	Messages   *MessageStore
	Reads      *ReadStateStore
	Hidden     *HiddenThreadStore
	Aggregator *ThreadAggregator
	Bootstrap  *ConversationBootstrap

	clock   utils.Clock
	metrics *utils.MetricsCollector
	unread  singleflight.Group
}

// NewService wires the stores over a single backend.
func NewService(db database.DBAdapter, dir profiles.Directory, publisher EventPublisher, clock utils.Clock, metrics *utils.MetricsCollector, cfg *config.InboxConfig) *Service {
	messages := NewMessageStore(db, clock, publisher, cfg.MaxContentLength)
	reads := NewReadStateStore(db, clock, cfg.ClockSkew)
	hidden := NewHiddenThreadStore(db, messages, cfg.HideResurrection)
	return &Service{
		Messages:   messages,
		Reads:      reads,
		Hidden:     hidden,
		Aggregator: NewThreadAggregator(messages, reads, hidden, dir, cfg),
		Bootstrap:  NewConversationBootstrap(db, dir, clock),
		clock:      clock,
		metrics:    metrics,
	}
}

func (s *Service) track(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Track(op, start, err)
	}
}

func (s *Service) SendMessage(ctx context.Context, owner, counterpart uuid.UUID, content string) (msg *models.Message, err error) {
	defer func(start time.Time) { s.track(OpSendMessage, start, err) }(time.Now())

	if owner == counterpart {
		slog.Warn("Rejected self-addressed message", "owner", owner)
		return nil, utils.NewSelfMessageError()
	}
	if _, err = NormalizeContent(content, s.Messages.maxContent); err != nil {
		return nil, err
	}
	if err = s.Bootstrap.EnsureParticipants(ctx, owner, counterpart); err != nil {
		return nil, err
	}

	msg, err = s.Messages.Append(ctx, owner, counterpart, content)
	if err != nil {
		return nil, err
	}
	slog.Debug("Message appended", "messageId", msg.ID, "sender", owner, "recipient", counterpart)
	return msg, nil
}

func (s *Service) ListThreads(ctx context.Context, owner uuid.UUID) (threads []*models.Thread, err error) {
	defer func(start time.Time) { s.track(OpListThreads, start, err) }(time.Now())
	return s.Aggregator.ListThreads(ctx, owner)
}

func (s *Service) GetThread(ctx context.Context, owner, counterpart uuid.UUID) (view *models.ThreadView, err error) {
	defer func(start time.Time) { s.track(OpGetThread, start, err) }(time.Now())
	return s.Aggregator.GetThread(ctx, owner, counterpart)
}

// MarkThreadRead stamps the thread read at the server's current time.
func (s *Service) MarkThreadRead(ctx context.Context, owner, counterpart uuid.UUID) (state *models.ReadState, err error) {
	defer func(start time.Time) { s.track(OpMarkThreadRead, start, err) }(time.Now())
	return s.Reads.MarkRead(ctx, owner, counterpart, s.clock.Now())
}

func (s *Service) HideThread(ctx context.Context, owner, counterpart uuid.UUID) (hidden *models.HiddenThread, err error) {
	defer func(start time.Time) { s.track(OpHideThread, start, err) }(time.Now())

	hidden, err = s.Hidden.Hide(ctx, owner, counterpart, s.clock.Now())
	if err == nil {
		slog.Info("Thread hidden", "owner", owner, "counterpart", counterpart)
	}
	return hidden, err
}

// GetUnreadCount coalesces concurrent calls for the same owner.
func (s *Service) GetUnreadCount(ctx context.Context, owner uuid.UUID) (count int, err error) {
	defer func(start time.Time) { s.track(OpGetUnreadCount, start, err) }(time.Now())

	ch := s.unread.DoChan(owner.String(), func() (interface{}, error) {
		countCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedCallTimeout)
		defer cancel()
		return s.Aggregator.UnreadThreadCount(countCtx, owner)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}
