package services

import (
	"context"
	"testing"

	"github.com/yoockh/sagecreek/internal/utils"
)

type fakeSTT struct {
	text     string
	conf     float64
	err      error
	language string
}

func (f *fakeSTT) Transcribe(_ context.Context, audio []byte, mimeType, language string) (string, float64, error) {
	f.language = language
	return f.text, f.conf, f.err
}

func (f *fakeSTT) Close() error { return nil }

func TestQueryTranscribe(t *testing.T) {
	p := &fakeSTT{text: "how do I finish a single leg", conf: 0.91}
	svc := NewQueryService(p)

	got, err := svc.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/webm", "en")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Text != p.text || got.Confidence != 0.91 {
		t.Fatalf("transcript = %+v", got)
	}
	if p.language != "en-US" {
		t.Fatalf("language = %q", p.language)
	}
}

func TestQueryTranscribeErrors(t *testing.T) {
	tests := []struct {
		name  string
		svc   QueryService
		audio []byte
		code  utils.Code
	}{
		{"disabled", NewQueryService(nil), []byte{1}, utils.CodeFailedPrecondition},
		{"no audio", NewQueryService(&fakeSTT{text: "x"}), nil, utils.CodeInvalidArgument},
		{"silence", NewQueryService(&fakeSTT{text: "  "}), []byte{1}, utils.CodeInvalidArgument},
		{"provider failure", NewQueryService(&fakeSTT{err: utils.E(utils.CodeUnavailable, "stt", "down", errBoom)}), []byte{1}, utils.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Transcribe(context.Background(), tt.audio, "audio/webm", "")
			if !utils.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	for in, want := range map[string]string{"": "en-US", "en": "en-US", "es": "es-US", "fr-FR": "fr-FR"} {
		if got := normalizeLanguage(in); got != want {
			t.Fatalf("normalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
