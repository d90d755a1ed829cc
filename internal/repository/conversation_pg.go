package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"openrouter-chat/internal/domain"
)

const conversationSchema = `
	CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		messages   JSONB NOT NULL DEFAULT '[]'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

// EnsureSchema crea la tabla de conversaciones si no existe.
func (r *PgConversationRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, conversationSchema)
	return err
}

func (r *PgConversationRepository) Lookup(ctx context.Context, sessionID string) ([]domain.Message, bool, error) {
	const query = `
		SELECT messages
		FROM conversations
		WHERE session_id = $1
	`
	var raw []byte
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var msgs []domain.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, true, nil
}

func (r *PgConversationRepository) Upsert(ctx context.Context, sessionID string, messages []domain.Message) error {
	const query = `
		INSERT INTO conversations (session_id, messages, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id)
		DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
	`
	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	_, err = r.pool.Exec(ctx, query, sessionID, payload)
	return err
}
