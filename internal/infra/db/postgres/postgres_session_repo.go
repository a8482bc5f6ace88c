package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-results-bot/internal/domain"
	"telegram-results-bot/internal/domain/model"
	"telegram-results-bot/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*PostgresSessionRepo)(nil)

// PostgresSessionRepo persists one conversation row per Telegram user. The
// state column holds the step envelope as JSONB.
type PostgresSessionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{pool: pool}
}

func (r *PostgresSessionRepo) Get(ctx context.Context, userID int64) (*model.Session, error) {
	const q = `SELECT user_id, state, updated_at FROM sessions WHERE user_id=$1;`

	var (
		raw       []byte
		session   model.Session
		updatedAt time.Time
	)
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&session.UserID, &raw, &updatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}
	session.UpdatedAt = updatedAt

	state, err := model.UnmarshalState(raw)
	if err != nil {
		return nil, fmt.Errorf("decode session %d state: %w", userID, err)
	}
	session.State = state
	return &session, nil
}

func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	const q = `
INSERT INTO sessions (user_id, state, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET state=$2, updated_at=$3;
`
	raw, err := model.MarshalState(session.State)
	if err != nil {
		return fmt.Errorf("encode session %d state: %w", session.UserID, err)
	}
	if _, err := r.pool.Exec(ctx, q, session.UserID, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("save session %d: %w", session.UserID, err)
	}
	return nil
}

func (r *PostgresSessionRepo) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM sessions ORDER BY user_id;`)
	if err != nil {
		return nil, fmt.Errorf("list session user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
