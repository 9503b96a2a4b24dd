package repositories

import (
	"context"

	"github.com/yoockh/sagecreek/internal/models"
)

// SessionRepository persists per-visitor session state. Get returns
// utils.ErrNotFound for unknown or expired sessions.
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, sessionID string) error
}
