package storage

import (
	"context"

	"github.com/google/generative-ai-go/genai"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

// GeminiFiles stores videos with the Gemini Files API. Uploaded files start
// in PROCESSING and must be polled until ACTIVE.
type GeminiFiles struct {
	client *genai.Client
}

func NewGeminiFiles(client *genai.Client) *GeminiFiles {
	return &GeminiFiles{client: client}
}

func (g *GeminiFiles) Upload(ctx context.Context, path, mimeType, displayName string) (models.VideoHandle, error) {
	const op = "GeminiFiles.Upload"

	f, err := g.client.UploadFileFromPath(ctx, path, &genai.UploadFileOptions{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return models.VideoHandle{}, utils.E(utils.CodeUnavailable, op, "failed to upload video", err)
	}
	return handleFromFile(f), nil
}

func (g *GeminiFiles) Get(ctx context.Context, name string) (models.VideoHandle, error) {
	f, err := g.client.GetFile(ctx, name)
	if err != nil {
		return models.VideoHandle{}, utils.E(utils.CodeUnavailable, "GeminiFiles.Get", "failed to fetch file status", err)
	}
	return handleFromFile(f), nil
}

func (g *GeminiFiles) Delete(ctx context.Context, name string) error {
	if err := g.client.DeleteFile(ctx, name); err != nil {
		return utils.E(utils.CodeUnavailable, "GeminiFiles.Delete", "failed to delete file", err)
	}
	return nil
}

func handleFromFile(f *genai.File) models.VideoHandle {
	if f == nil {
		return models.VideoHandle{}
	}
	return models.VideoHandle{
		Name:        f.Name,
		URI:         f.URI,
		MIMEType:    f.MIMEType,
		DisplayName: f.DisplayName,
		SizeBytes:   f.SizeBytes,
		State:       fileState(f.State),
		CreatedAt:   f.CreateTime,
	}
}

func fileState(s genai.FileState) models.FileState {
	switch s {
	case genai.FileStateProcessing:
		return models.FileStateProcessing
	case genai.FileStateActive:
		return models.FileStateActive
	case genai.FileStateFailed:
		return models.FileStateFailed
	default:
		return models.FileStateUnspecified
	}
}
