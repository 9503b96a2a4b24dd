package services

import (
	"context"
	"strings"

	"github.com/yoockh/sagecreek/internal/providers/stt"
	"github.com/yoockh/sagecreek/internal/utils"
)

type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// QueryService turns a recorded spoken question into query text.
type QueryService interface {
	Enabled() bool
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (Transcript, error)
}

type queryService struct {
	stt stt.Provider
}

func NewQueryService(p stt.Provider) QueryService {
	return &queryService{stt: p}
}

func (q *queryService) Enabled() bool { return q.stt != nil }

func (q *queryService) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (Transcript, error) {
	const op = "QueryService.Transcribe"

	if q.stt == nil {
		return Transcript{}, utils.E(utils.CodeFailedPrecondition, op, "Spoken questions are not enabled on this server.", nil)
	}
	if len(audio) == 0 {
		return Transcript{}, utils.E(utils.CodeInvalidArgument, op, "audio is required", nil)
	}

	text, conf, err := q.stt.Transcribe(ctx, audio, mimeType, normalizeLanguage(language))
	if err != nil {
		return Transcript{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Transcript{}, utils.E(utils.CodeInvalidArgument, op, "We could not hear a question. Try recording again.", nil)
	}
	return Transcript{Text: text, Confidence: conf}, nil
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "", "en", "en-US":
		return "en-US"
	case "es", "es-US":
		return "es-US"
	default:
		return v
	}
}
