package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"helpdesk/internal/domain"
)

// PostgresStore persists conversation state as one JSONB record per session.
// Records hold no cross-session references, so they serialize independently.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS conversation_sessions (
			session_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_sessions_last_active ON conversation_sessions(last_active_at);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT state
		FROM conversation_sessions
		WHERE session_id=$1
	`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if state.Slots == nil {
		state.Slots = map[string]domain.SlotValue{}
	}
	return &state, nil
}

func (s *PostgresStore) CreateOrGet(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	state, err := s.Get(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	fresh := domain.NewConversationState(sessionID, s.now())
	raw, err := json.Marshal(fresh)
	if err != nil {
		return nil, err
	}

	// Another writer may have inserted concurrently; keep the existing row.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_sessions (session_id, state, created_at, last_active_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, raw, fresh.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

func (s *PostgresStore) Save(ctx context.Context, state *domain.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_sessions (session_id, state, created_at, last_active_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET state = EXCLUDED.state, last_active_at = EXCLUDED.last_active_at
	`, state.SessionID, raw, state.CreatedAt, state.LastActiveAt)
	return err
}

func (s *PostgresStore) Reset(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM conversation_sessions WHERE session_id=$1
	`, sessionID)
	return err
}

func (s *PostgresStore) ExpireIdle(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM conversation_sessions WHERE last_active_at < $1
	`, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
