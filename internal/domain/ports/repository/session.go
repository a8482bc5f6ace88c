package repository

import (
	"context"

	"telegram-results-bot/internal/domain/model"
)

// SessionRepository persists per-user conversation sessions. Get returns
// domain.ErrNotFound for users that never interacted; callers treat that as
// an implicit main-menu session.
type SessionRepository interface {
	Get(ctx context.Context, userID int64) (*model.Session, error)
	Save(ctx context.Context, s *model.Session) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}
