// Package profiles resolves profile ids through the external profile store.
package profiles

import (
	"context"
	"sync"
	"time"

	"recruit-inbox/internal/database"
	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const lookupTimeout = 3 * time.Second

// Directory returns active profiles. Absent and inactive profiles are both
// reported as a NOT_FOUND AppError.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type cacheEntry struct {
	profile   *models.Profile // nil records a miss
	expiresAt time.Time
}

// CachedDirectory caches lookups for a fixed TTL and coalesces concurrent
// lookups of the same id into one repository call.
type CachedDirectory struct {
	repo  database.ProfileRepository
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time

	mu      sync.RWMutex
	entries map[uuid.UUID]cacheEntry
}

func NewCachedDirectory(repo database.ProfileRepository, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

func notFound() error {
	return utils.NewAppError(utils.ErrNotFound, "profile not found", nil)
}

func (d *CachedDirectory) Lookup(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if entry, ok := d.cached(id); ok {
		if entry.profile == nil {
			return nil, notFound()
		}
		return entry.profile, nil
	}

	ch := d.group.DoChan(id.String(), func() (interface{}, error) {
		// Detached so one caller going away does not fail the others.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return d.fetch(fetchCtx, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		profile := res.Val.(*models.Profile)
		if profile == nil {
			return nil, notFound()
		}
		return profile, nil
	}
}

func (d *CachedDirectory) fetch(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile, err := d.repo.GetProfile(ctx, id)
	if err != nil && !utils.IsErrorCode(err, utils.ErrNotFound) {
		if utils.ErrorCode(err) == "" {
			err = utils.NewStoreUnavailableError("lookup profile", err)
		}
		return nil, err
	}
	if profile != nil && !profile.Active {
		profile = nil
	}
	d.store(id, profile)
	return profile, nil
}

func (d *CachedDirectory) cached(id uuid.UUID) (cacheEntry, bool) {
	if d.ttl <= 0 {
		return cacheEntry{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[id]
	if !ok || d.now().After(entry.expiresAt) {
		return cacheEntry{}, false
	}
	return entry, true
}

func (d *CachedDirectory) store(id uuid.UUID, profile *models.Profile) {
	if d.ttl <= 0 {
		return
	}
	d.mu.Lock()
	d.entries[id] = cacheEntry{profile: profile, expiresAt: d.now().Add(d.ttl)}
	d.mu.Unlock()
}

// Invalidate drops any cached entry for id.
func (d *CachedDirectory) Invalidate(id uuid.UUID) {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
}
