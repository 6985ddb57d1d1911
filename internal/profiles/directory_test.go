package profiles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"
)

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*models.Profile)
	return profile, args.Error(1)
}

func TestLookupCachesWithinTTL(t *testing.T) {
	repo := new(mockProfileRepo)
	profile := &models.Profile{ID: uuid.New(), DisplayName: "Harbor United", Active: true}
	repo.On("GetProfile", mock.Anything, profile.ID).Return(profile, nil).Once()

	dir := NewCachedDirectory(repo, time.Minute)
	for i := 0; i < 3; i++ {
		got, err := dir.Lookup(context.Background(), profile.ID)
		require.NoError(t, err)
		assert.Equal(t, "Harbor United", got.DisplayName)
	}
	repo.AssertExpectations(t)
}

func TestLookupRefetchesAfterExpiry(t *testing.T) {
	repo := new(mockProfileRepo)
	profile := &models.Profile{ID: uuid.New(), Active: true}
	repo.On("GetProfile", mock.Anything, profile.ID).Return(profile, nil).Twice()

	now := time.Now()
	dir := NewCachedDirectory(repo, time.Minute)
	dir.now = func() time.Time { return now }

	_, err := dir.Lookup(context.Background(), profile.ID)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = dir.Lookup(context.Background(), profile.ID)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestInactiveAndMissingProfilesAreNotFound(t *testing.T) {
	repo := new(mockProfileRepo)
	inactive := &models.Profile{ID: uuid.New(), Active: false}
	missing := uuid.New()
	repo.On("GetProfile", mock.Anything, inactive.ID).Return(inactive, nil).Once()
	repo.On("GetProfile", mock.Anything, missing).
		Return(nil, utils.NewAppError(utils.ErrNotFound, "profile not found", nil)).Once()

	dir := NewCachedDirectory(repo, time.Minute)
	for _, id := range []uuid.UUID{inactive.ID, missing, missing} {
		_, err := dir.Lookup(context.Background(), id)
		assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	}
	repo.AssertExpectations(t)
}

func TestBackendFailureIsStoreUnavailableAndNotCached(t *testing.T) {
	repo := new(mockProfileRepo)
	id := uuid.New()
	repo.On("GetProfile", mock.Anything, id).Return(nil, errors.New("connection refused")).Twice()

	dir := NewCachedDirectory(repo, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := dir.Lookup(context.Background(), id)
		assert.True(t, utils.IsErrorCode(err, utils.ErrStoreUnavailable))
	}
	repo.AssertExpectations(t)
}

// blockingRepo holds every lookup until release is closed.
type blockingRepo struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	profile *models.Profile
}

func (b *blockingRepo) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return b.profile, nil
}

func TestConcurrentLookupsAreCoalesced(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{}), profile: &models.Profile{ID: uuid.New(), Active: true}}
	dir := NewCachedDirectory(repo, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.Lookup(context.Background(), repo.profile.ID)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, 1, repo.calls)
}

func TestLookupHonoursCallerCancellation(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{}), profile: &models.Profile{ID: uuid.New(), Active: true}}
	defer close(repo.release)
	dir := NewCachedDirectory(repo, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := dir.Lookup(ctx, repo.profile.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
