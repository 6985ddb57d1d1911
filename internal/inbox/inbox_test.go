package inbox

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.MessageAppended
}

func (p *recordingPublisher) Publish(evt interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := evt.(*models.MessageAppended); ok {
		p.events = append(p.events, e)
	}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	db        *database.MemoryDB
	svc       *Service
	publisher *recordingPublisher
	clock     *utils.MonotonicClock
}

func newFixture(t *testing.T, mutate ...func(*config.InboxConfig)) *fixture {
	t.Helper()
	cfg := config.DefaultInboxConfig()
	for _, m := range mutate {
		m(cfg)
	}
	db := database.NewMemoryDB()
	clock := utils.NewMonotonicClock(db.Resolution())
	pub := &recordingPublisher{}
	dir := profiles.NewCachedDirectory(db, 0)
	return &fixture{
		db:        db,
		svc:       NewService(db, dir, pub, clock, utils.NewMetricsCollector(), cfg),
		publisher: pub,
		clock:     clock,
	}
}

func (f *fixture) profile(name string) uuid.UUID {
	id := uuid.New()
	f.db.PutProfile(&models.Profile{ID: id, DisplayName: name, Role: models.RoleAthlete, Active: true})
	return id
}

func (f *fixture) send(t *testing.T, from, to uuid.UUID, content string) *models.Message {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), from, to, content)
	require.NoError(t, err)
	return msg
}

func (f *fixture) threads(t *testing.T, owner uuid.UUID) map[uuid.UUID]*models.Thread {
	t.Helper()
	list, err := f.svc.ListThreads(context.Background(), owner)
	require.NoError(t, err)
	out := make(map[uuid.UUID]*models.Thread, len(list))
	for _, th := range list {
		out[th.CounterpartID] = th
	}
	return out
}

func TestAppendThenListContainsMessageOnceInOrder(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")

	var sent []*models.Message
	for i := 0; i < 5; i++ {
		sent = append(sent, f.send(t, a, b, "msg"))
		sent = append(sent, f.send(t, b, a, "reply"))
	}

	msgs, err := f.svc.Messages.ListBetween(context.Background(), b, a)
	require.NoError(t, err)
	require.Len(t, msgs, len(sent))
	for i := range sent {
		assert.Equal(t, sent[i].ID, msgs[i].ID)
	}
	assert.Equal(t, len(sent), f.publisher.count())
}

func TestAppendValidatesContent(t *testing.T) {
	f := newFixture(t, func(c *config.InboxConfig) { c.MaxContentLength = 5 })
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	for _, content := range []string{"", "   \n\t", "toolong"} {
		_, err := f.svc.Messages.Append(ctx, a, b, content)
		assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidContent), "content %q", content)
	}

	// Bound is counted in characters, not bytes.
	msg, err := f.svc.Messages.Append(ctx, a, b, "  ñandú ")
	require.NoError(t, err)
	assert.Equal(t, "ñandú", msg.Content)
}

func TestSelfMessageIsRejectedAndNotPersisted(t *testing.T) {
	f := newFixture(t)
	a := f.profile("Ana")
	ctx := context.Background()

	// Both entry points check the pair before the content.
	for _, content := range []string{"x", ""} {
		_, err := f.svc.Messages.Append(ctx, a, a, content)
		assert.True(t, utils.IsErrorCode(err, utils.ErrSelfMessage), "append %q", content)
		_, err = f.svc.SendMessage(ctx, a, a, content)
		assert.True(t, utils.IsErrorCode(err, utils.ErrSelfMessage), "send %q", content)
	}

	msgs, err := f.svc.Messages.ListBetween(ctx, a, a)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, f.publisher.count())
}

func TestSendToUnknownOrInactiveCounterpart(t *testing.T) {
	f := newFixture(t)
	a := f.profile("Ana")
	gone := uuid.New()
	f.db.PutProfile(&models.Profile{ID: gone, DisplayName: "Closed club", Active: false})

	for _, to := range []uuid.UUID{uuid.New(), gone} {
		_, err := f.svc.SendMessage(context.Background(), a, to, "hello")
		assert.True(t, utils.IsErrorCode(err, utils.ErrCounterpartNotFound))
	}
	assert.Zero(t, f.db.ParticipantCount())
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestAppendIDFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")

	uuid.SetRand(failingReader{})
	defer uuid.SetRand(nil)

	_, err := f.svc.Messages.Append(context.Background(), a, b, "hello")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInternal))
	assert.Equal(t, http.StatusInternalServerError, utils.AppErrorToHTTPStatus(utils.ErrorCode(err)))
	assert.Zero(t, f.publisher.count())
}

func TestAppendStoreFailurePublishesNothing(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.Messages.Append(ctx, a, b, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.publisher.count())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	at := f.clock.Now()
	_, err := f.svc.Reads.MarkRead(ctx, a, b, at)
	require.NoError(t, err)
	_, err = f.svc.Reads.MarkRead(ctx, a, b, at)
	require.NoError(t, err)

	got, ok, err := f.svc.Reads.LastReadAt(ctx, a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	_, ok, err = f.svc.Reads.LastReadAt(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkReadRejectsInsaneTimestamps(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	_, err := f.svc.Reads.MarkRead(ctx, a, b, time.Time{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidTimestamp))
	_, err = f.svc.Reads.MarkRead(ctx, a, b, time.Now().Add(time.Hour))
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidTimestamp))
	_, err = f.svc.MarkThreadRead(ctx, a, a)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotAuthorized))
}

func TestUnreadInvariant(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	f.send(t, b, a, "are you free?")
	require.True(t, f.threads(t, a)[b].HasUnread)

	_, err := f.svc.MarkThreadRead(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, f.threads(t, a)[b].HasUnread)

	f.send(t, b, a, "ping")
	assert.True(t, f.threads(t, a)[b].HasUnread)

	// The owner's own reply does not clear unread.
	f.send(t, a, b, "yes")
	th := f.threads(t, a)[b]
	assert.True(t, th.HasUnread)
	assert.Equal(t, "yes", th.LastMessage.Content)
	assert.True(t, th.LastIncomingAt.Before(th.LastMessageAt))
}

func TestUnreadStateIsPerOwner(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	f.send(t, a, b, "hi")  // t1
	f.send(t, b, a, "hey") // t2

	th := f.threads(t, a)[b]
	assert.Equal(t, "hey", th.LastMessage.Content)
	assert.True(t, th.HasUnread)

	_, err := f.svc.MarkThreadRead(ctx, a, b) // t3
	require.NoError(t, err)
	assert.False(t, f.threads(t, a)[b].HasUnread)

	// B never read A's "hi".
	assert.True(t, f.threads(t, b)[a].HasUnread)
	_, err = f.svc.MarkThreadRead(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, f.threads(t, b)[a].HasUnread)
}

func TestThreadWithoutIncomingIsNeverUnread(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	f.send(t, a, b, "first contact")

	th := f.threads(t, a)[b]
	require.NotNil(t, th)
	assert.False(t, th.HasUnread)
	assert.Nil(t, th.LastIncomingAt)
}

func TestListThreadsOrderAndCounterpartDisplay(t *testing.T) {
	f := newFixture(t)
	a := f.profile("Ana")
	b, c, d := f.profile("Bruno"), f.profile("Carla"), f.profile("Diego")

	f.send(t, b, a, "1")
	f.send(t, c, a, "2")
	f.send(t, a, d, "3")
	f.send(t, b, a, "4")

	list, err := f.svc.ListThreads(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{b, d, c}, []uuid.UUID{list[0].CounterpartID, list[1].CounterpartID, list[2].CounterpartID})
	assert.Equal(t, "Bruno", list[0].Counterpart.DisplayName)

	again, err := f.svc.ListThreads(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, list, again)
}

func TestInactiveCounterpartThreadIsDropped(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	f.send(t, b, a, "hello")

	f.db.PutProfile(&models.Profile{ID: b, DisplayName: "Bruno", Active: false})
	assert.NotContains(t, f.threads(t, a), b)

	count, err := f.svc.GetUnreadCount(context.Background(), a)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHideRemovesThreadFromList(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.profile("Ana"), f.profile("Bruno"), f.profile("Carla")
	ctx := context.Background()

	f.send(t, b, a, "hello")
	f.send(t, c, a, "hola")

	hidden, err := f.svc.HideThread(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, hidden.ClearedAt.IsZero())

	threads := f.threads(t, a)
	assert.NotContains(t, threads, b)
	assert.Contains(t, threads, c)

	// History is untouched and the other party still sees the thread.
	view, err := f.svc.GetThread(ctx, a, b)
	require.NoError(t, err)
	assert.Len(t, view.Messages, 1)
	assert.Contains(t, f.threads(t, b), a)

	isHidden, err := f.svc.Hidden.IsHidden(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, isHidden)
	isHidden, err = f.svc.Hidden.IsHidden(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, isHidden)
}

func TestHideResurrectionPolicies(t *testing.T) {
	cases := []struct {
		policy      string
		afterReply  bool
		afterIncome bool
	}{
		{config.HideResurrectNever, false, false},
		{config.HideResurrectIncoming, false, true},
		{config.HideResurrectAny, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.policy, func(t *testing.T) {
			f := newFixture(t, func(c *config.InboxConfig) { c.HideResurrection = tc.policy })
			a, b := f.profile("Ana"), f.profile("Bruno")

			f.send(t, b, a, "hello")
			_, err := f.svc.HideThread(context.Background(), a, b)
			require.NoError(t, err)
			require.NotContains(t, f.threads(t, a), b)

			f.send(t, a, b, "outgoing after hide")
			_, visible := f.threads(t, a)[b]
			assert.Equal(t, tc.afterReply, visible, "after own message")
			hidden, err := f.svc.Hidden.IsHidden(context.Background(), a, b)
			require.NoError(t, err)
			assert.Equal(t, !visible, hidden, "IsHidden agrees with the list after own message")

			f.send(t, b, a, "incoming after hide")
			_, visible = f.threads(t, a)[b]
			assert.Equal(t, tc.afterIncome, visible, "after incoming message")
			hidden, err = f.svc.Hidden.IsHidden(context.Background(), a, b)
			require.NoError(t, err)
			assert.Equal(t, !visible, hidden, "IsHidden agrees with the list after incoming message")
		})
	}
}

func TestGetThreadAuthorization(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")
	ctx := context.Background()

	_, err := f.svc.GetThread(ctx, a, a)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotAuthorized))

	// Unknown ids look exactly like forbidden ones.
	_, err = f.svc.GetThread(ctx, a, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotAuthorized))
	assert.Equal(t, "Not authorized", err.Error())

	f.send(t, a, b, "hi")
	view, err := f.svc.GetThread(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, "Bruno", view.Counterpart.DisplayName)

	// Viewing does not mark read.
	view, err = f.svc.GetThread(ctx, b, a)
	require.NoError(t, err)
	assert.Len(t, view.Messages, 1)
	assert.True(t, f.threads(t, b)[a].HasUnread)
}

func TestUnreadCountMatchesListThreads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []uuid.UUID{f.profile("A"), f.profile("B"), f.profile("C"), f.profile("D")}
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 200; step++ {
		from := users[rng.Intn(len(users))]
		to := users[rng.Intn(len(users))]
		if from == to {
			continue
		}
		switch rng.Intn(4) {
		case 0, 1:
			f.send(t, from, to, "m")
		case 2:
			_, err := f.svc.MarkThreadRead(ctx, from, to)
			require.NoError(t, err)
		case 3:
			_, err := f.svc.HideThread(ctx, from, to)
			require.NoError(t, err)
		}

		for _, owner := range users {
			list, err := f.svc.ListThreads(ctx, owner)
			require.NoError(t, err)
			want := 0
			for _, th := range list {
				if th.HasUnread {
					want++
				}
			}
			got, err := f.svc.GetUnreadCount(ctx, owner)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
	}
}

func TestConcurrentSendsBothDirections(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(context.Background(), a, b, "a->b")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(context.Background(), b, a, "b->a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := f.svc.Messages.ListBetween(context.Background(), a, b)
	require.NoError(t, err)
	require.Len(t, msgs, 100)
	seen := make(map[uuid.UUID]bool)
	for i, m := range msgs {
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
		if i > 0 {
			assert.True(t, m.CreatedAt.After(msgs[i-1].CreatedAt))
		}
	}
	assert.Equal(t, 2, f.db.ParticipantCount())
}

func TestEnsureParticipantsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, b := f.profile("Ana"), f.profile("Bruno")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.Bootstrap.EnsureParticipants(context.Background(), a, b))
		}()
	}
	wg.Wait()
	require.NoError(t, f.svc.Bootstrap.EnsureParticipants(context.Background(), b, a))
	assert.Equal(t, 2, f.db.ParticipantCount())

	err := f.svc.Bootstrap.EnsureParticipants(context.Background(), a, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrCounterpartNotFound))
}

func TestEnsuredPairsAreBounded(t *testing.T) {
	f := newFixture(t)
	f.svc.Bootstrap.ensuredLimit = 2
	a := f.profile("Ana")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.Bootstrap.EnsureParticipants(ctx, a, f.profile("Club")))
		assert.LessOrEqual(t, f.svc.Bootstrap.ensuredCount(), 2)
	}
	assert.Equal(t, 10, f.db.ParticipantCount())

	// A forgotten pair is registered again without duplicating rows.
	b := f.profile("Bruno")
	for i := 0; i < 4; i++ {
		require.NoError(t, f.svc.Bootstrap.EnsureParticipants(ctx, a, b))
	}
	assert.Equal(t, 12, f.db.ParticipantCount())
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func TestEqualTimestampsOrderByMessageID(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.profile("Ana"), f.profile("Bruno"), f.profile("Carla"), f.profile("Dario")
	ctx := context.Background()
	at := f.clock.Now()

	var heads []uuid.UUID
	for _, from := range []uuid.UUID{b, c, d} {
		msg := &models.Message{ID: uuid.New(), SenderID: from, RecipientID: a, Content: "same instant", CreatedAt: at}
		require.NoError(t, f.db.InsertMessage(ctx, msg))
		heads = append(heads, msg.ID)
	}

	threads, err := f.svc.ListThreads(ctx, a)
	require.NoError(t, err)
	require.Len(t, threads, 3)
	for i, id := range sortedIDs(heads) {
		assert.Equal(t, id, threads[i].LastMessage.ID, "thread %d", i)
	}

	pair := []uuid.UUID{uuid.New(), uuid.New()}
	require.NoError(t, f.db.InsertMessage(ctx, &models.Message{ID: pair[0], SenderID: b, RecipientID: c, Content: "ping", CreatedAt: at}))
	require.NoError(t, f.db.InsertMessage(ctx, &models.Message{ID: pair[1], SenderID: c, RecipientID: b, Content: "pong", CreatedAt: at}))

	for _, owner := range [][2]uuid.UUID{{b, c}, {c, b}} {
		msgs, err := f.svc.Messages.ListBetween(ctx, owner[0], owner[1])
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		want := sortedIDs(pair)
		assert.Equal(t, want[0], msgs[0].ID)
		assert.Equal(t, want[1], msgs[1].ID)
	}
}

type failingDirectory struct{}

func (failingDirectory) Lookup(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("profile service timeout")
}

func TestProfileOutageIsStoreUnavailable(t *testing.T) {
	db := database.NewMemoryDB()
	clock := utils.NewMonotonicClock(db.Resolution())
	svc := NewService(db, failingDirectory{}, nil, clock, nil, config.DefaultInboxConfig())
	a, b := uuid.New(), uuid.New()
	ctx := context.Background()

	_, err := svc.Messages.Append(ctx, b, a, "hello")
	require.NoError(t, err)

	_, err = svc.ListThreads(ctx, a)
	assert.True(t, utils.IsErrorCode(err, utils.ErrStoreUnavailable))
	_, err = svc.SendMessage(ctx, a, b, "hi")
	assert.True(t, utils.IsErrorCode(err, utils.ErrStoreUnavailable))
	_, err = svc.GetThread(ctx, a, b)
	assert.True(t, strings.Contains(err.Error(), "profile service timeout"))
}
