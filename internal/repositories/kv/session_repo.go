package kv

import (
	"context"
	"time"

	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/repositories"
	"github.com/yoockh/sagecreek/internal/utils"
)

const keyPrefix = "session:"

type sessionRepo struct {
	c   cache.Cache
	now func() time.Time
}

// NewSessionRepo stores sessions in c, expiring each at its ExpiresAt.
func NewSessionRepo(c cache.Cache) repositories.SessionRepository {
	return &sessionRepo{c: c, now: time.Now}
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	hit, err := r.c.GetJSON(ctx, keyPrefix+sessionID, &s)
	if err != nil {
		return nil, err
	}
	if !hit {
		return nil, utils.ErrNotFound
	}
	if !s.ExpiresAt.IsZero() && !r.now().Before(s.ExpiresAt) {
		return nil, utils.ErrNotFound
	}
	return &s, nil
}

func (r *sessionRepo) Save(ctx context.Context, s *models.Session) error {
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.Delete(ctx, s.SessionID)
		}
	}
	return r.c.SetJSON(ctx, keyPrefix+s.SessionID, s, ttl)
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	return r.c.Del(ctx, keyPrefix+sessionID)
}
