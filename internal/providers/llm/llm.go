package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

// Request carries exactly one video reference: an uploaded handle or a public link.
type Request struct {
	SystemInstruction string
	Prompt            string
	Video             *models.VideoHandle
	VideoURL          string
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, req Request) (chunks <-chan string, errs <-chan error)
	Name() string
	Close() error
}

func validate(op string, req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "prompt is required", nil)
	}
	hasVideo := req.Video != nil && req.Video.URI != ""
	if hasVideo == (req.VideoURL != "") {
		return utils.E(utils.CodeInvalidArgument, op, "exactly one of video handle or video URL is required", nil)
	}
	return nil
}

// Collect drains a stream into the full answer text. onChunk, when set, sees
// each chunk as it arrives.
func Collect(ctx context.Context, chunks <-chan string, errs <-chan error, onChunk func(string)) (string, error) {
	var b strings.Builder
	for chunks != nil || errs != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			b.WriteString(c)
			if onChunk != nil {
				onChunk(c)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return "", err
			}
		}
	}
	return b.String(), nil
}

func emptyAnswer(op string) error {
	return utils.E(utils.CodeUpstreamFailed, op, "model returned an empty answer", nil)
}

func wrapCallErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return err
	}
	return utils.E(utils.CodeUpstreamFailed, op, "model call failed", err)
}

func videoMIME(req Request) string {
	if req.Video != nil && req.Video.MIMEType != "" {
		return req.Video.MIMEType
	}
	return "video/mp4"
}

func videoURI(req Request) string {
	if req.Video != nil && req.Video.URI != "" {
		return req.Video.URI
	}
	return req.VideoURL
}
