package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

// GCSStore stages videos in a bucket for Vertex AI, which reads gs:// URIs.
// Objects are usable as soon as the write completes.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, utils.E(utils.CodeInvalidArgument, "storage.NewGCSStore", "GCS_BUCKET is required", nil)
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "uploads"
	}
	return &GCSStore{client: c, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *GCSStore) Close() error { return s.client.Close() }

func (s *GCSStore) Upload(ctx context.Context, localPath, mimeType, displayName string) (models.VideoHandle, error) {
	const op = "GCSStore.Upload"

	f, err := os.Open(localPath)
	if err != nil {
		return models.VideoHandle{}, utils.E(utils.CodeInternal, op, "failed to open staged video", err)
	}
	defer f.Close()

	objectName := s.objectName(localPath)
	obj := s.client.Bucket(s.bucket).Object(objectName)

	w := obj.NewWriter(ctx)
	w.ContentType = mimeType
	if displayName != "" {
		w.Metadata = map[string]string{"display_name": displayName}
	}

	n, err := io.Copy(w, f)
	if err != nil {
		_ = w.Close()
		return models.VideoHandle{}, utils.E(utils.CodeUnavailable, op, "failed to upload video", err)
	}
	if err := w.Close(); err != nil {
		return models.VideoHandle{}, utils.E(utils.CodeUnavailable, op, "failed to upload video", err)
	}

	h := models.VideoHandle{
		Name:        objectName,
		URI:         GCSURI(s.bucket, objectName),
		MIMEType:    mimeType,
		DisplayName: displayName,
		SizeBytes:   n,
		State:       models.FileStateActive,
	}
	if attrs := w.Attrs(); attrs != nil {
		h.CreatedAt = attrs.Created
	}
	return h, nil
}

func (s *GCSStore) Get(ctx context.Context, name string) (models.VideoHandle, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return models.VideoHandle{}, utils.E(utils.CodeNotFound, "GCSStore.Get", "video not found", err)
	}
	if err != nil {
		return models.VideoHandle{}, utils.E(utils.CodeUnavailable, "GCSStore.Get", "failed to fetch object", err)
	}
	return models.VideoHandle{
		Name:        attrs.Name,
		URI:         GCSURI(attrs.Bucket, attrs.Name),
		MIMEType:    attrs.ContentType,
		DisplayName: attrs.Metadata["display_name"],
		SizeBytes:   attrs.Size,
		State:       models.FileStateActive,
		CreatedAt:   attrs.Created,
	}, nil
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return utils.E(utils.CodeUnavailable, "GCSStore.Delete", "failed to delete object", err)
	}
	return nil
}

func (s *GCSStore) objectName(localPath string) string {
	return path.Join(s.prefix, uuid.NewString()+strings.ToLower(filepath.Ext(localPath)))
}

func GCSURI(bucket, object string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, object)
}
