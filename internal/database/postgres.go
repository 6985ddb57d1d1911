// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"recruit-inbox/internal/models"
	"recruit-inbox/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB
}

var _ DBAdapter = (*PostgresDB)(nil)

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, utils.NewStoreUnavailableError("connect to PostgreSQL", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("Successfully connected to PostgreSQL")

	return &PostgresDB{DB: db}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	slog.Info("Closing PostgreSQL connection")
	return p.DB.Close()
}

// Resolution matches the microsecond precision of TIMESTAMPTZ.
func (p *PostgresDB) Resolution() time.Duration { return time.Microsecond }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY,
		display_name VARCHAR(100) NOT NULL,
		avatar_url VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'athlete',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS direct_messages (
		id UUID PRIMARY KEY,
		sender_id UUID NOT NULL,
		recipient_id UUID NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		CONSTRAINT direct_messages_not_self CHECK (sender_id <> recipient_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_direct_messages_sender ON direct_messages (sender_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_direct_messages_recipient ON direct_messages (recipient_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS thread_heads (
		owner_id UUID NOT NULL,
		counterpart_id UUID NOT NULL,
		last_message_id UUID NOT NULL,
		last_message_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_incoming_at TIMESTAMP WITH TIME ZONE,
		PRIMARY KEY (owner_id, counterpart_id)
	)`,
	// Backfills heads for a log written before thread_heads existed.
	`INSERT INTO thread_heads (owner_id, counterpart_id, last_message_id, last_message_at, last_incoming_at)
	SELECT l.owner_id, l.counterpart_id, l.id, l.created_at, i.last_incoming_at
	FROM (
		SELECT DISTINCT ON (owner_id, counterpart_id) owner_id, counterpart_id, id, created_at
		FROM (
			SELECT sender_id AS owner_id, recipient_id AS counterpart_id, id, created_at FROM direct_messages
			UNION ALL
			SELECT recipient_id, sender_id, id, created_at FROM direct_messages
		) owned
		ORDER BY owner_id, counterpart_id, created_at DESC, id DESC
	) l
	LEFT JOIN (
		SELECT recipient_id AS owner_id, sender_id AS counterpart_id, MAX(created_at) AS last_incoming_at
		FROM direct_messages
		GROUP BY recipient_id, sender_id
	) i ON i.owner_id = l.owner_id AND i.counterpart_id = l.counterpart_id
	WHERE NOT EXISTS (SELECT 1 FROM thread_heads)
	ON CONFLICT (owner_id, counterpart_id) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS message_read_states (
		owner_id UUID NOT NULL,
		counterpart_id UUID NOT NULL,
		last_read_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (owner_id, counterpart_id)
	)`,
	`CREATE TABLE IF NOT EXISTS hidden_threads (
		owner_id UUID NOT NULL,
		counterpart_id UUID NOT NULL,
		hidden_at TIMESTAMP WITH TIME ZONE NOT NULL,
		cleared_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (owner_id, counterpart_id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		owner_id UUID NOT NULL,
		counterpart_id UUID NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (owner_id, counterpart_id)
	)`,
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return utils.NewStoreUnavailableError("initialize schema", err)
		}
	}
	return nil
}

// --- Message Methods ---

// InsertMessage appends a message to the log and advances both
// participants' thread heads in the same statement. Head rows are written in
// owner order so opposite-direction sends lock them in the same sequence.
func (p *PostgresDB) InsertMessage(ctx context.Context, msg *models.Message) error {
	query := `
		WITH inserted AS (
			INSERT INTO direct_messages (id, sender_id, recipient_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, sender_id, recipient_id, created_at
		)
		INSERT INTO thread_heads AS h (owner_id, counterpart_id, last_message_id, last_message_at, last_incoming_at)
		SELECT owner_id, counterpart_id, id, created_at, incoming_at
		FROM (
			SELECT sender_id AS owner_id, recipient_id AS counterpart_id, id, created_at, NULL::timestamptz AS incoming_at
			FROM inserted
			UNION ALL
			SELECT recipient_id, sender_id, id, created_at, created_at
			FROM inserted
		) heads
		ORDER BY owner_id
		ON CONFLICT (owner_id, counterpart_id) DO UPDATE SET
			last_message_id = CASE
				WHEN (EXCLUDED.last_message_at, EXCLUDED.last_message_id) > (h.last_message_at, h.last_message_id)
				THEN EXCLUDED.last_message_id
				ELSE h.last_message_id
			END,
			last_message_at = GREATEST(h.last_message_at, EXCLUDED.last_message_at),
			last_incoming_at = GREATEST(h.last_incoming_at, EXCLUDED.last_incoming_at)
	`
	_, err := p.DB.ExecContext(ctx, query, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "check_violation":
				return utils.NewSelfMessageError()
			case "unique_violation":
				return utils.NewAppError(utils.ErrInvalidInput, "duplicate message id", err)
			}
		}
		return utils.NewStoreUnavailableError("insert message", err)
	}
	return nil
}

// ListMessagesBetween fetches the full history between two profiles.
func (p *PostgresDB) ListMessagesBetween(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content, created_at
		FROM direct_messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at ASC, id ASC
	`
	messages := []*models.Message{}
	if err := p.DB.SelectContext(ctx, &messages, query, a, b); err != nil {
		return nil, utils.NewStoreUnavailableError("list messages", err)
	}
	for _, m := range messages {
		m.CreatedAt = m.CreatedAt.UTC()
	}
	return messages, nil
}

type threadHeadRow struct {
	CounterpartID  uuid.UUID    `db:"counterpart_id"`
	ID             uuid.UUID    `db:"id"`
	SenderID       uuid.UUID    `db:"sender_id"`
	RecipientID    uuid.UUID    `db:"recipient_id"`
	Content        string       `db:"content"`
	CreatedAt      time.Time    `db:"created_at"`
	LastIncomingAt sql.NullTime `db:"last_incoming_at"`
}

// ThreadHeads reads the owner's maintained heads joined with their last
// messages, newest first.
func (p *PostgresDB) ThreadHeads(ctx context.Context, owner uuid.UUID) ([]*models.ThreadHead, error) {
	query := `
		SELECT h.counterpart_id, m.id, m.sender_id, m.recipient_id, m.content, m.created_at, h.last_incoming_at
		FROM thread_heads h
		JOIN direct_messages m ON m.id = h.last_message_id
		WHERE h.owner_id = $1
		ORDER BY h.last_message_at DESC, h.last_message_id ASC
	`
	rows := []threadHeadRow{}
	if err := p.DB.SelectContext(ctx, &rows, query, owner); err != nil {
		return nil, utils.NewStoreUnavailableError("load thread heads", err)
	}

	heads := make([]*models.ThreadHead, 0, len(rows))
	for _, row := range rows {
		head := &models.ThreadHead{
			CounterpartID: row.CounterpartID,
			LastMessage: &models.Message{
				ID:          row.ID,
				SenderID:    row.SenderID,
				RecipientID: row.RecipientID,
				Content:     row.Content,
				CreatedAt:   row.CreatedAt.UTC(),
			},
		}
		if row.LastIncomingAt.Valid {
			at := row.LastIncomingAt.Time.UTC()
			head.LastIncomingAt = &at
		}
		heads = append(heads, head)
	}
	return heads, nil
}

// --- Read State Methods ---

// UpsertReadState records a read watermark, keeping the greater timestamp.
func (p *PostgresDB) UpsertReadState(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.ReadState, error) {
	query := `
		INSERT INTO message_read_states (owner_id, counterpart_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, counterpart_id)
		DO UPDATE SET last_read_at = GREATEST(message_read_states.last_read_at, EXCLUDED.last_read_at)
		RETURNING owner_id, counterpart_id, last_read_at
	`
	var state models.ReadState
	if err := p.DB.GetContext(ctx, &state, query, owner, counterpart, at); err != nil {
		return nil, utils.NewStoreUnavailableError("upsert read state", err)
	}
	state.LastReadAt = state.LastReadAt.UTC()
	return &state, nil
}

// GetReadState fetches one read watermark.
func (p *PostgresDB) GetReadState(ctx context.Context, owner, counterpart uuid.UUID) (*models.ReadState, error) {
	query := `SELECT owner_id, counterpart_id, last_read_at FROM message_read_states WHERE owner_id = $1 AND counterpart_id = $2`
	var state models.ReadState
	if err := p.DB.GetContext(ctx, &state, query, owner, counterpart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "read state not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get read state", err)
	}
	state.LastReadAt = state.LastReadAt.UTC()
	return &state, nil
}

// ListReadStates fetches every read watermark of owner.
func (p *PostgresDB) ListReadStates(ctx context.Context, owner uuid.UUID) ([]*models.ReadState, error) {
	query := `SELECT owner_id, counterpart_id, last_read_at FROM message_read_states WHERE owner_id = $1`
	states := []*models.ReadState{}
	if err := p.DB.SelectContext(ctx, &states, query, owner); err != nil {
		return nil, utils.NewStoreUnavailableError("list read states", err)
	}
	for _, s := range states {
		s.LastReadAt = s.LastReadAt.UTC()
	}
	return states, nil
}

// --- Hidden Thread Methods ---

// UpsertHiddenThread hides a thread, never moving either timestamp backwards.
func (p *PostgresDB) UpsertHiddenThread(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (*models.HiddenThread, error) {
	query := `
		INSERT INTO hidden_threads (owner_id, counterpart_id, hidden_at, cleared_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (owner_id, counterpart_id)
		DO UPDATE SET
			hidden_at = GREATEST(hidden_threads.hidden_at, EXCLUDED.hidden_at),
			cleared_at = GREATEST(hidden_threads.cleared_at, EXCLUDED.cleared_at)
		RETURNING owner_id, counterpart_id, hidden_at, cleared_at
	`
	var hidden models.HiddenThread
	if err := p.DB.GetContext(ctx, &hidden, query, owner, counterpart, at); err != nil {
		return nil, utils.NewStoreUnavailableError("upsert hidden thread", err)
	}
	normalizeHidden(&hidden)
	return &hidden, nil
}

// GetHiddenThread fetches one hide marker.
func (p *PostgresDB) GetHiddenThread(ctx context.Context, owner, counterpart uuid.UUID) (*models.HiddenThread, error) {
	query := `SELECT owner_id, counterpart_id, hidden_at, cleared_at FROM hidden_threads WHERE owner_id = $1 AND counterpart_id = $2`
	var hidden models.HiddenThread
	if err := p.DB.GetContext(ctx, &hidden, query, owner, counterpart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "hidden thread not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get hidden thread", err)
	}
	normalizeHidden(&hidden)
	return &hidden, nil
}

// ListHiddenThreads fetches every hide marker of owner.
func (p *PostgresDB) ListHiddenThreads(ctx context.Context, owner uuid.UUID) ([]*models.HiddenThread, error) {
	query := `SELECT owner_id, counterpart_id, hidden_at, cleared_at FROM hidden_threads WHERE owner_id = $1`
	hidden := []*models.HiddenThread{}
	if err := p.DB.SelectContext(ctx, &hidden, query, owner); err != nil {
		return nil, utils.NewStoreUnavailableError("list hidden threads", err)
	}
	for _, h := range hidden {
		normalizeHidden(h)
	}
	return hidden, nil
}

func normalizeHidden(h *models.HiddenThread) {
	h.HiddenAt = h.HiddenAt.UTC()
	h.ClearedAt = h.ClearedAt.UTC()
}

// --- Participant Methods ---

// EnsureParticipantPair registers both orderings of the pair exactly once.
func (p *PostgresDB) EnsureParticipantPair(ctx context.Context, owner, counterpart uuid.UUID, at time.Time) (bool, error) {
	query := `
		INSERT INTO conversation_participants (owner_id, counterpart_id, created_at)
		VALUES ($1, $2, $3), ($2, $1, $3)
		ON CONFLICT (owner_id, counterpart_id) DO NOTHING
	`
	result, err := p.DB.ExecContext(ctx, query, owner, counterpart, at)
	if err != nil {
		return false, utils.NewStoreUnavailableError("ensure participants", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewStoreUnavailableError("get rows affected after participant upsert", err)
	}
	return rowsAffected > 0, nil
}

// --- Profile Methods ---

// GetProfile fetches a profile by its ID.
func (p *PostgresDB) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `SELECT id, display_name, avatar_url, role, is_active, updated_at FROM profiles WHERE id = $1`
	var profile models.Profile
	if err := p.DB.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "profile not found", err)
		}
		return nil, utils.NewStoreUnavailableError("get profile", err)
	}
	return &profile, nil
}
