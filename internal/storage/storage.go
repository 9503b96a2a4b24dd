package storage

import (
	"context"

	"github.com/yoockh/sagecreek/internal/models"
)

// Store holds uploaded videos where the inference vendor can read them.
type Store interface {
	Upload(ctx context.Context, path, mimeType, displayName string) (models.VideoHandle, error)
	Get(ctx context.Context, name string) (models.VideoHandle, error)
	Delete(ctx context.Context, name string) error
}
