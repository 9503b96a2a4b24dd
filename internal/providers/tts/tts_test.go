package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

func TestResolveVoice(t *testing.T) {
	voices := []models.Voice{
		{ID: "v1", Name: "Rachel"},
		{ID: "v2", Name: "Adam"},
	}

	tests := []struct {
		name     string
		voices   []models.Voice
		want     string
		fallback string
		wantID   string
	}{
		{"by name", voices, "adam", "v1", "v2"},
		{"by id", voices, "V2", "v1", "v2"},
		{"unknown falls back", voices, "Morgan Freeman", "v1", "v1"},
		{"empty falls back", voices, "", "v2", "v2"},
		{"fallback not listed", voices, "nobody", "zz", "zz"},
		{"no fallback uses first", voices, "nobody", "", "v1"},
		{"nothing at all", nil, "nobody", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveVoice(tt.voices, tt.want, tt.fallback)
			if got.ID != tt.wantID {
				t.Fatalf("ResolveVoice(%q) = %+v, want id %q", tt.want, got, tt.wantID)
			}
		})
	}
}

func TestElevenLabsListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"voices":[{"voice_id":"abc","name":"Rachel","category":"premade","labels":{"accent":"american","language":"en"}}]}`)
	}))
	defer srv.Close()

	c := NewElevenLabs("key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "abc" || voices[0].Name != "Rachel" || voices[0].Language != "en" {
		t.Fatalf("unexpected voices %+v", voices)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/text-to-speech/abc" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Keep your hips low." || body.ModelID != elevenLabsModel {
			t.Errorf("unexpected body %+v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	c := NewElevenLabs("key", WithBaseURL(srv.URL))
	audio, mime, err := c.Synthesize(context.Background(), "abc", "Keep your hips low.")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(audio) != "ID3fake" || mime != "audio/mpeg" {
		t.Fatalf("unexpected result %q %q", audio, mime)
	}
}

func TestElevenLabsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := NewElevenLabs("key",
		WithBaseURL(srv.URL),
		WithRetry(3, time.Second, 5*time.Second),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	if _, _, err := c.Synthesize(context.Background(), "abc", "text"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("sleeps = %v", sleeps)
	}
}

func TestElevenLabsErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   utils.Code
	}{
		{"bad key", http.StatusUnauthorized, utils.CodeFailedPrecondition},
		{"bad voice", http.StatusNotFound, utils.CodeUpstreamFailed},
		{"outage", http.StatusBadGateway, utils.CodeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewElevenLabs("key", WithBaseURL(srv.URL), WithSleeper(func(time.Duration) {}))
			_, _, err := c.Synthesize(context.Background(), "abc", "text")
			if !utils.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}

	if _, err := NewElevenLabs("").ListVoices(context.Background()); !utils.IsCode(err, utils.CodeFailedPrecondition) {
		t.Fatalf("expected FAILED_PRECONDITION without key, got %v", err)
	}
}

func TestVoiceFamily(t *testing.T) {
	if got := voiceFamily("en-US-Neural2-D"); got != "Neural2" {
		t.Fatalf("voiceFamily = %q", got)
	}
	if got := voiceFamily("custom"); got != "" {
		t.Fatalf("voiceFamily = %q", got)
	}
}

func TestElevenLabsStopsRetryingWhenCallerGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewElevenLabs("key",
		WithBaseURL(srv.URL),
		WithRetry(3, time.Second, 5*time.Second),
		WithSleeper(func(time.Duration) { cancel() }),
	)
	if _, err := c.ListVoices(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
