package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/repositories"
	"github.com/yoockh/sagecreek/internal/utils"
)

const SessionsCollection = "sessions"

type sessionRepo struct {
	col *mongo.Collection
}

// NewSessionRepo relies on the TTL index on expires_at (config.EnsureMongoIndexes)
// to drop abandoned sessions.
func NewSessionRepo(db *mongo.Database) repositories.SessionRepository {
	return &sessionRepo{col: db.Collection(SessionsCollection)}
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{
		"session_id": sessionID,
		// the TTL monitor runs about once a minute
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Save(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": s.SessionID},
		sessionUpdate(s),
		options.Update().SetUpsert(true),
	)
	return err
}

// sessionUpdate unsets cleared fields so a replaced analysis never keeps stale audio.
func sessionUpdate(s *models.Session) bson.M {
	set := bson.M{
		"flags":      s.Flags,
		"updated_at": s.UpdatedAt,
		"expires_at": s.ExpiresAt.UTC(),
	}
	unset := bson.M{}
	for field, val := range map[string]any{
		"analysis": s.Analysis,
		"audio":    s.Audio,
		"notice":   s.Notice,
	} {
		if isNil(val) {
			unset[field] = ""
		} else {
			set[field] = val
		}
	}

	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"session_id": s.SessionID, "created_at": s.CreatedAt},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"session_id": sessionID})
	return err
}

func isNil(v any) bool {
	switch x := v.(type) {
	case *models.AnalysisResult:
		return x == nil
	case *models.AudioArtifact:
		return x == nil
	case *models.Notice:
		return x == nil
	default:
		return v == nil
	}
}
