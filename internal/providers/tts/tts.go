package tts

import (
	"context"
	"strings"

	"github.com/yoockh/sagecreek/internal/models"
)

type Provider interface {
	ListVoices(ctx context.Context) ([]models.Voice, error)
	// Synthesize returns encoded audio and its MIME type.
	Synthesize(ctx context.Context, voiceID, text string) (audio []byte, mimeType string, err error)
	Name() string
	Close() error
}

// ResolveVoice picks the voice matching want by id or name, case-insensitively.
// Unknown or empty names fall back to fallbackID, then to the first listed voice.
// It never fails; a fallback id absent from the list is returned as a bare voice.
func ResolveVoice(voices []models.Voice, want, fallbackID string) models.Voice {
	want = strings.TrimSpace(want)
	if want != "" {
		for _, v := range voices {
			if strings.EqualFold(v.ID, want) || strings.EqualFold(v.Name, want) {
				return v
			}
		}
	}
	if fallbackID != "" {
		for _, v := range voices {
			if v.ID == fallbackID {
				return v
			}
		}
		return models.Voice{ID: fallbackID, Name: fallbackID}
	}
	if len(voices) > 0 {
		return voices[0]
	}
	return models.Voice{}
}
