// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/models"

	"github.com/google/uuid"
)

// MessageRepository persists the append-only direct message log.
type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	// ListMessagesBetween returns every message exchanged between a and b,
	// oldest first, ties broken by id.
	ListMessagesBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error)
	// ThreadHeads returns one head per counterpart of owner.
	ThreadHeads(ctx context.Context, owner uuid.UUID) ([]*models.ThreadHead, error)
}

// ReadStateRepository stores per-(owner, counterpart) read watermarks.
// Upserts never move LastReadAt backwards.
type ReadStateRepository interface {
	UpsertReadState(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.ReadState, error)
	GetReadState(ctx context.Context, owner, counterpart uuid.UUID) (*models.ReadState, error)
	ListReadStates(ctx context.Context, owner uuid.UUID) ([]*models.ReadState, error)
}

// HiddenThreadRepository stores per-(owner, counterpart) soft-hide markers.
type HiddenThreadRepository interface {
	UpsertHiddenThread(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.HiddenThread, error)
	GetHiddenThread(ctx context.Context, owner, counterpart uuid.UUID) (*models.HiddenThread, error)
	ListHiddenThreads(ctx context.Context, owner uuid.UUID) ([]*models.HiddenThread, error)
}

// ParticipantRepository registers conversation participants. Both orderings
// of the pair are written; created reports whether any row was new.
type ParticipantRepository interface {
	EnsureParticipantPair(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (created bool, err error)
}

// ProfileRepository reads profiles owned by the external profile service.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// DBAdapter defines the common interface for database operations.
// PostgreSQL, MongoDB and an in-memory store implement it.
type DBAdapter interface {
	MessageRepository
	ReadStateRepository
	HiddenThreadRepository
	ParticipantRepository
	ProfileRepository

	// Resolution is the finest timestamp precision the backend preserves.
	Resolution() time.Duration
	Close(ctx context.Context) error
}

// Open connects to the backend selected by cfg.Type and prepares its schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (DBAdapter, error) {
	switch cfg.Type {
	case config.DBTypePostgres:
		db, err := NewPostgresDB(cfg.URI)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBTypeMongo:
		db, err := NewMongoDB(cfg.URI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBTypeMemory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
