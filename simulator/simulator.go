package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/database"
	"recruit-inbox/internal/engine"
	"recruit-inbox/internal/engine/actors"
	"recruit-inbox/internal/inbox"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/profiles"
	"recruit-inbox/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SimConfig shapes the simulated traffic. Weights are relative.
type SimConfig struct {
	NumClubs       int
	NumAthletes    int
	Workers        int
	Operations     int // per worker
	SendWeight     float64
	ReadWeight     float64
	HideWeight     float64
	ConnectedShare float64 // fraction of profiles holding a live session at start
	DisconnectRate float64
	ReconnectRate  float64
	ZipfS          float64
	Seed           int64
	ReportInterval time.Duration
	Inbox          *config.InboxConfig
}

// DefaultSimConfig is a small run suitable for a laptop.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumClubs:       10,
		NumAthletes:    100,
		Workers:        8,
		Operations:     500,
		SendWeight:     0.6,
		ReadWeight:     0.3,
		HideWeight:     0.1,
		ConnectedShare: 0.5,
		DisconnectRate: 0.01,
		ReconnectRate:  0.05,
		ZipfS:          1.07,
		Seed:           time.Now().UnixNano(),
		ReportInterval: 5 * time.Second,
		Inbox:          config.DefaultInboxConfig(),
	}
}

// SimulatedProfile is one participant and its optional live session.
type SimulatedProfile struct {
	ID   uuid.UUID
	Role models.ProfileRole

	mu      sync.Mutex
	session *countingSession
}

// Report summarises a run. Violations lists every inbox invariant found
// broken during verification.
type Report struct {
	Profiles   int
	Sent       int64
	Reads      int64
	Hides      int64
	Failed     int64
	Threads    int
	Unread     int
	Signals    uint64
	Relay      *actors.RelayStats
	Duration   time.Duration
	Violations []string
}

// OK reports whether the run finished without invariant violations.
func (r *Report) OK() bool {
	return len(r.Violations) == 0 && r.Failed == 0
}

// countingSession is a relay session that only counts what it is pushed.
type countingSession struct {
	id       uuid.UUID
	owner    uuid.UUID
	received *atomic.Uint64
}

func (s *countingSession) ID() uuid.UUID      { return s.id }
func (s *countingSession) OwnerID() uuid.UUID { return s.owner }
func (s *countingSession) Push(payload []byte) bool {
	s.received.Add(1)
	return true
}

// Simulator drives the inbox service in-process against the memory store,
// then checks that every owner's inbox is self-consistent.
type Simulator struct {
	config  SimConfig
	db      *database.MemoryDB
	system  *actor.ActorSystem
	engine  *engine.Engine
	service *inbox.Service
	metrics *utils.MetricsCollector

	clubs    []*SimulatedProfile
	athletes []*SimulatedProfile

	sent, reads, hides, failed atomic.Int64
	signals                    atomic.Uint64
}

func NewSimulator(cfg SimConfig) *Simulator {
	if cfg.Inbox == nil {
		cfg.Inbox = config.DefaultInboxConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	db := database.NewMemoryDB()
	metrics := utils.NewMetricsCollector()
	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, metrics)
	dir := profiles.NewCachedDirectory(db, cfg.Inbox.ProfileCacheTTL)
	clock := utils.NewMonotonicClock(db.Resolution())

	return &Simulator{
		config:  cfg,
		db:      db,
		system:  system,
		engine:  eng,
		service: inbox.NewService(db, dir, eng.Publisher(), clock, metrics, cfg.Inbox),
		metrics: metrics,
	}
}

// Run seeds profiles, runs the workers to completion and verifies the result.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	defer s.engine.Stop()
	start := time.Now()

	if s.config.NumClubs < 1 || s.config.NumAthletes < 1 {
		return nil, fmt.Errorf("simulation needs at least one club and one athlete")
	}
	if s.config.ZipfS <= 1 {
		return nil, fmt.Errorf("zipf parameter must be greater than 1, got %.2f", s.config.ZipfS)
	}

	s.initialize()
	slog.Info("Starting simulation", "clubs", len(s.clubs), "athletes", len(s.athletes), "workers", s.config.Workers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		s.simulateConnectivity(runCtx)
	}()
	go func() {
		defer background.Done()
		s.collectMetrics(runCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < s.config.Workers; w++ {
		rng := rand.New(rand.NewSource(s.config.Seed + int64(w)))
		g.Go(func() error {
			return s.worker(gctx, rng)
		})
	}
	err := g.Wait()
	cancel()
	background.Wait()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Profiles: len(s.clubs) + len(s.athletes),
		Sent:     s.sent.Load(),
		Reads:    s.reads.Load(),
		Hides:    s.hides.Load(),
		Failed:   s.failed.Load(),
	}
	if err := s.verify(ctx, report); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (s *Simulator) initialize() {
	rng := rand.New(rand.NewSource(s.config.Seed))
	seed := func(n int, role models.ProfileRole, prefix string) []*SimulatedProfile {
		out := make([]*SimulatedProfile, 0, n)
		for i := 0; i < n; i++ {
			p := &SimulatedProfile{ID: uuid.New(), Role: role}
			s.db.PutProfile(&models.Profile{
				ID:          p.ID,
				DisplayName: fmt.Sprintf("%s_%d", prefix, i),
				Role:        role,
				Active:      true,
				UpdatedAt:   time.Now(),
			})
			if rng.Float64() < s.config.ConnectedShare {
				s.connect(p)
			}
			out = append(out, p)
		}
		return out
	}
	s.clubs = seed(s.config.NumClubs, models.RoleClub, "club")
	s.athletes = seed(s.config.NumAthletes, models.RoleAthlete, "athlete")
}

func (s *Simulator) connect(p *SimulatedProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return
	}
	p.session = &countingSession{id: uuid.New(), owner: p.ID, received: &s.signals}
	s.system.Root.Send(s.engine.GetRelayActor(), &actors.SubscribeSessionMsg{Session: p.session})
}

func (s *Simulator) disconnect(p *SimulatedProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return
	}
	s.system.Root.Send(s.engine.GetRelayActor(), &actors.UnsubscribeSessionMsg{SessionID: p.session.id, OwnerID: p.ID})
	p.session = nil
}

// worker performs Operations random actions. Clubs reach out to athletes
// and athletes answer clubs; popular counterparts are picked by Zipf rank.
func (s *Simulator) worker(ctx context.Context, rng *rand.Rand) error {
	clubZipf := s.newZipf(rng, len(s.clubs))
	athleteZipf := s.newZipf(rng, len(s.athletes))
	total := s.config.SendWeight + s.config.ReadWeight + s.config.HideWeight

	for i := 0; i < s.config.Operations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var owner, counterpart *SimulatedProfile
		if rng.Intn(len(s.clubs)+len(s.athletes)) < len(s.clubs) {
			owner = s.clubs[rng.Intn(len(s.clubs))]
			counterpart = s.athletes[athleteZipf.Uint64()]
		} else {
			owner = s.athletes[rng.Intn(len(s.athletes))]
			counterpart = s.clubs[clubZipf.Uint64()]
		}

		var err error
		switch roll := rng.Float64() * total; {
		case roll < s.config.SendWeight:
			content := fmt.Sprintf("message %d from %s", i, owner.Role)
			if _, err = s.service.SendMessage(ctx, owner.ID, counterpart.ID, content); err == nil {
				s.sent.Add(1)
			}
		case roll < s.config.SendWeight+s.config.ReadWeight:
			if _, err = s.service.MarkThreadRead(ctx, owner.ID, counterpart.ID); err == nil {
				s.reads.Add(1)
			}
		default:
			if _, err = s.service.HideThread(ctx, owner.ID, counterpart.ID); err == nil {
				s.hides.Add(1)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.failed.Add(1)
			slog.Warn("Simulated operation failed", "owner", owner.ID, "counterpart", counterpart.ID, "error", err)
		}
	}
	return nil
}

func (s *Simulator) newZipf(rng *rand.Rand, n int) *rand.Zipf {
	return rand.NewZipf(rng, s.config.ZipfS, 1, uint64(n-1))
}

func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(s.config.Seed - 1))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, group := range [][]*SimulatedProfile{s.clubs, s.athletes} {
				for _, p := range group {
					p.mu.Lock()
					connected := p.session != nil
					p.mu.Unlock()

					if connected && rng.Float64() < s.config.DisconnectRate {
						s.disconnect(p)
					} else if !connected && rng.Float64() < s.config.ReconnectRate {
						s.connect(p)
					}
				}
			}
		}
	}
}

func (s *Simulator) collectMetrics(ctx context.Context) {
	if s.config.ReportInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.metrics.Snapshot()
			slog.Info("Simulation progress",
				"sent", s.sent.Load(),
				"reads", s.reads.Load(),
				"hides", s.hides.Load(),
				"failed", s.failed.Load(),
				"signals", s.signals.Load(),
				"requests", snap.Requests,
			)
		}
	}
}

// verify walks every owner's inbox and records broken invariants.
func (s *Simulator) verify(ctx context.Context, report *Report) error {
	stats, err := s.engine.RelayStats(5 * time.Second)
	if err != nil {
		return err
	}
	report.Relay = stats
	report.Signals = s.signals.Load()
	if report.Signals != stats.Delivered {
		report.violate("relay delivered %d signals but sessions received %d", stats.Delivered, report.Signals)
	}

	for _, group := range [][]*SimulatedProfile{s.clubs, s.athletes} {
		for _, p := range group {
			if err := s.verifyOwner(ctx, p.ID, report); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simulator) verifyOwner(ctx context.Context, owner uuid.UUID, report *Report) error {
	threads, err := s.service.ListThreads(ctx, owner)
	if err != nil {
		return err
	}
	count, err := s.service.GetUnreadCount(ctx, owner)
	if err != nil {
		return err
	}

	unread := 0
	for i, thread := range threads {
		if thread.CounterpartID == owner {
			report.violate("owner %s has a thread with itself", owner)
		}
		if i > 0 && threads[i-1].LastMessageAt.Before(thread.LastMessageAt) {
			report.violate("owner %s threads out of order at %d", owner, i)
		}

		view, err := s.service.GetThread(ctx, owner, thread.CounterpartID)
		if err != nil {
			return err
		}
		if n := len(view.Messages); n == 0 || view.Messages[n-1].ID != thread.LastMessage.ID {
			report.violate("owner %s thread %s last message mismatch", owner, thread.CounterpartID)
		}

		readAt, ok, err := s.service.Reads.LastReadAt(ctx, owner, thread.CounterpartID)
		if err != nil {
			return err
		}
		want := thread.LastIncomingAt != nil && (!ok || thread.LastIncomingAt.After(readAt))
		if want != thread.HasUnread {
			report.violate("owner %s thread %s unread flag %v, want %v", owner, thread.CounterpartID, thread.HasUnread, want)
		}
		if thread.HasUnread {
			unread++
		}
	}

	if count != unread {
		report.violate("owner %s unread count %d but %d unread threads", owner, count, unread)
	}
	report.Threads += len(threads)
	report.Unread += unread
	return nil
}

func (r *Report) violate(format string, args ...interface{}) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
}
