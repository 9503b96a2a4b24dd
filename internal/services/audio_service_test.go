package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/repositories/kv"
	"github.com/yoockh/sagecreek/internal/utils"
)

type fakeTTS struct {
	mu       sync.Mutex
	voices   []models.Voice
	listErr  error
	lists    int
	voiceIDs []string
	texts    []string
}

func (f *fakeTTS) ListVoices(context.Context) ([]models.Voice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.voices, f.listErr
}

func (f *fakeTTS) Synthesize(_ context.Context, voiceID, text string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voiceIDs = append(f.voiceIDs, voiceID)
	f.texts = append(f.texts, text)
	return []byte("ID3-mp3"), "audio/mpeg", nil
}

func (f *fakeTTS) Name() string { return "fake-tts" }
func (f *fakeTTS) Close() error { return nil }

func newAudioHarness(t *testing.T, p *fakeTTS) (SessionService, AudioService, *models.Session) {
	t.Helper()
	c := cache.NewMemoryCache()
	sessions := NewSessionService(kv.NewSessionRepo(c), time.Hour)
	var svc AudioService
	if p != nil {
		svc = NewAudioService(sessions, p, c, AudioConfig{DefaultVoiceID: "coach"}, nil)
	} else {
		svc = NewAudioService(sessions, nil, c, AudioConfig{}, nil)
	}
	s, err := sessions.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sessions, svc, s
}

func withAnalysis(s *models.Session) {
	s.SetAnalysis(&models.AnalysisResult{
		ID:   "a1",
		Text: "# Stance\n\nKeep your **hips** low.\n\n```\ncode\n```\n",
	})
}

func TestAudioGenerate(t *testing.T) {
	voices := []models.Voice{{ID: "coach", Name: "Coach"}, {ID: "v2", Name: "Rachel"}}

	tests := []struct {
		name      string
		voice     string
		listErr   error
		wantVoice string
	}{
		{"named voice", "rachel", nil, "v2"},
		{"voice by id", "v2", nil, "v2"},
		{"unknown voice falls back", "Nobody", nil, "coach"},
		{"empty voice uses default", "", nil, "coach"},
		{"voice list failure still speaks", "Rachel", errBoom, "coach"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeTTS{voices: voices, listErr: tt.listErr}
			sessions, svc, s := newAudioHarness(t, p)
			withAnalysis(s)

			art, err := svc.Generate(context.Background(), s, AudioRequest{Voice: tt.voice})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if art.VoiceID != tt.wantVoice || p.voiceIDs[0] != tt.wantVoice {
				t.Fatalf("voice = %q, want %q", art.VoiceID, tt.wantVoice)
			}
			if art.AnalysisID != "a1" || art.MIMEType != "audio/mpeg" {
				t.Fatalf("unexpected artifact %+v", art)
			}
			if strings.Contains(p.texts[0], "code") || strings.Contains(p.texts[0], "**") || !strings.Contains(p.texts[0], "Keep your hips low.") {
				t.Fatalf("script = %q", p.texts[0])
			}

			stored, err := sessions.Get(context.Background(), s.SessionID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if stored.Audio == nil || !stored.Flags.ShowAudioPanel || string(stored.Audio.Bytes) != "ID3-mp3" {
				t.Fatalf("audio not stored: %+v", stored.Audio)
			}
		})
	}
}

func TestAudioGenerateRequiresAnalysis(t *testing.T) {
	p := &fakeTTS{}
	_, svc, s := newAudioHarness(t, p)

	_, err := svc.Generate(context.Background(), s, AudioRequest{})
	if !utils.IsCode(err, utils.CodeFailedPrecondition) {
		t.Fatalf("expected FAILED_PRECONDITION, got %v", err)
	}
	if len(p.texts) != 0 {
		t.Fatalf("nothing should be synthesized")
	}
}

func TestAudioNotConfigured(t *testing.T) {
	_, svc, s := newAudioHarness(t, nil)
	withAnalysis(s)

	if svc.Enabled() {
		t.Fatalf("expected disabled")
	}
	if _, err := svc.Generate(context.Background(), s, AudioRequest{}); !utils.IsCode(err, utils.CodeFailedPrecondition) {
		t.Fatalf("expected FAILED_PRECONDITION, got %v", err)
	}
	if _, err := svc.Voices(context.Background()); !utils.IsCode(err, utils.CodeFailedPrecondition) {
		t.Fatalf("expected FAILED_PRECONDITION, got %v", err)
	}
}

func TestAudioVoicesAreCached(t *testing.T) {
	p := &fakeTTS{voices: []models.Voice{{ID: "coach", Name: "Coach"}}}
	_, svc, _ := newAudioHarness(t, p)

	for i := 0; i < 3; i++ {
		v, err := svc.Voices(context.Background())
		if err != nil {
			t.Fatalf("voices: %v", err)
		}
		if len(v) != 1 || v[0].ID != "coach" {
			t.Fatalf("voices = %+v", v)
		}
	}
	if p.lists != 1 {
		t.Fatalf("provider listed %d times, want 1", p.lists)
	}
}

func TestAudioVoicesFailureIsRemembered(t *testing.T) {
	p := &fakeTTS{listErr: errBoom}
	_, svc, _ := newAudioHarness(t, p)
	impl := svc.(*audioService)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	impl.now = func() time.Time { return now }

	if _, err := svc.Voices(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := svc.Voices(context.Background()); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE while down, got %v", err)
	}
	if p.lists != 1 {
		t.Fatalf("provider listed %d times while down, want 1", p.lists)
	}

	now = now.Add(voicesRetryWait + time.Second)
	p.listErr = nil
	p.voices = []models.Voice{{ID: "coach", Name: "Coach"}}
	if v, err := svc.Voices(context.Background()); err != nil || len(v) != 1 {
		t.Fatalf("voices after retry wait = %+v, %v", v, err)
	}
	if p.lists != 2 {
		t.Fatalf("provider listed %d times, want 2", p.lists)
	}
}

func TestAudioSaveFailureKeepsPreviousAudio(t *testing.T) {
	repo := &flakyRepo{SessionRepository: kv.NewSessionRepo(cache.NewMemoryCache())}
	sessions := NewSessionService(repo, time.Hour)
	p := &fakeTTS{voices: []models.Voice{{ID: "coach", Name: "Coach"}}}
	svc := NewAudioService(sessions, p, cache.NewMemoryCache(), AudioConfig{DefaultVoiceID: "coach"}, nil)

	s, err := sessions.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	withAnalysis(s)
	old := &models.AudioArtifact{AnalysisID: "a1", Bytes: []byte("old")}
	s.SetAudio(old)

	repo.failSaves = 1
	if _, err := svc.Generate(context.Background(), s, AudioRequest{}); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
	if s.Audio != old {
		t.Fatalf("audio replaced despite failed save: %+v", s.Audio)
	}
}
