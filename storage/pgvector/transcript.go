package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// TranscriptRepository implements storage.TranscriptRepository on PostgreSQL.
type TranscriptRepository struct {
	db *DB
}

var _ storage.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a repository over db.
func NewTranscriptRepository(db *DB) storage.TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Close is a no-op; DB owns the pool.
func (r *TranscriptRepository) Close() error {
	return nil
}

// SaveTurn upserts a turn by session and order.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, session string, turn core.ConversationTurn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	_, err := r.db.pool.Exec(ctx,
		`INSERT INTO ragchat_turns (session, turn_order, question, answer, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session, turn_order) DO UPDATE
		 SET question = EXCLUDED.question, answer = EXCLUDED.answer, created_at = EXCLUDED.created_at`,
		session, turn.Order, turn.Question, turn.Answer, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadSession returns turns ordered by turn_order.
func (r *TranscriptRepository) LoadSession(ctx context.Context, session string) ([]core.ConversationTurn, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT question, answer, turn_order, created_at FROM ragchat_turns
		 WHERE session = $1 ORDER BY turn_order`,
		session,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ConversationTurn, error) {
		var turn core.ConversationTurn
		err := row.Scan(&turn.Question, &turn.Answer, &turn.Order, &turn.Timestamp)
		return turn, err
	})
}

// DeleteSession removes all turns of a session.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, session string) error {
	_, err := r.db.pool.Exec(ctx, `DELETE FROM ragchat_turns WHERE session = $1`, session)
	return err
}
