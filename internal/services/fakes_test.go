package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/media"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/polling"
	"github.com/yoockh/sagecreek/internal/prompt"
	"github.com/yoockh/sagecreek/internal/providers/llm"
	"github.com/yoockh/sagecreek/internal/providers/search"
	"github.com/yoockh/sagecreek/internal/providers/youtube"
	"github.com/yoockh/sagecreek/internal/repositories"
	"github.com/yoockh/sagecreek/internal/repositories/kv"
)

// smallest header the content sniffer accepts as video/mp4
var mp4Bytes = append([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2avc1mp41"), make([]byte, 1024)...)

type fakeStore struct {
	mu      sync.Mutex
	states  []models.FileState
	gets    int
	uploads []string
	deleted []string

	uploadErr  error
	fileExists bool
}

func (f *fakeStore) Upload(_ context.Context, path, mimeType, displayName string) (models.VideoHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := os.Stat(path); err == nil {
		f.fileExists = true
	}
	f.uploads = append(f.uploads, path)
	if f.uploadErr != nil {
		return models.VideoHandle{}, f.uploadErr
	}
	return models.VideoHandle{
		Name:        "files/abc",
		URI:         "https://vendor.example/files/abc",
		MIMEType:    mimeType,
		DisplayName: displayName,
		State:       models.FileStateProcessing,
	}, nil
}

func (f *fakeStore) Get(_ context.Context, name string) (models.VideoHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := models.FileStateActive
	if len(f.states) > 0 {
		i := f.gets
		if i >= len(f.states) {
			i = len(f.states) - 1
		}
		st = f.states[i]
	}
	f.gets++
	return models.VideoHandle{Name: name, URI: "https://vendor.example/" + name, MIMEType: "video/mp4", State: st}, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeLLM struct {
	mu     sync.Mutex
	text   string
	chunks []string
	err    error
	reqs   []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.text, f.err
}

func (f *fakeLLM) StreamAnswer(_ context.Context, req llm.Request) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	out := make(chan string, len(f.chunks))
	errs := make(chan error, 1)
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	if f.err != nil {
		errs <- f.err
	}
	close(errs)
	return out, errs
}

func (f *fakeLLM) Name() string { return "fake-model" }
func (f *fakeLLM) Close() error { return nil }

type fakeSearch struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeLookup struct {
	video youtube.Video
	err   error
}

func (f *fakeLookup) Video(_ context.Context, rawURL string) (youtube.Video, error) {
	return f.video, f.err
}

// flakyRepo fails the next failSaves saves.
type flakyRepo struct {
	repositories.SessionRepository

	mu        sync.Mutex
	failSaves int
}

func (r *flakyRepo) Save(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	if r.failSaves > 0 {
		r.failSaves--
		r.mu.Unlock()
		return errBoom
	}
	r.mu.Unlock()
	return r.SessionRepository.Save(ctx, s)
}

type harness struct {
	repo     *flakyRepo
	sessions SessionService
	store    *fakeStore
	model    *fakeLLM
	tempDir  string
	svc      AnalysisService
}

func newHarness(t *testing.T, opts ...AnalysisOption) *harness {
	t.Helper()
	repo := &flakyRepo{SessionRepository: kv.NewSessionRepo(cache.NewMemoryCache())}
	h := &harness{
		repo:     repo,
		sessions: NewSessionService(repo, time.Hour),
		store:    &fakeStore{},
		model:    &fakeLLM{text: "# Stance\n\nLower your hips."},
		tempDir:  t.TempDir(),
	}
	poller := polling.New(polling.Config{}, polling.WithSleeper(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	base := []AnalysisOption{WithProbe(func(context.Context, string) (media.Info, error) {
		return media.Info{DurationSeconds: 10, Codec: "h264"}, nil
	})}
	h.svc = NewAnalysisService(h.sessions, h.store, h.model, poller, prompt.NewBuilder(prompt.DefaultConfig()), AnalysisConfig{
		TempDir:        h.tempDir,
		MaxUploadBytes: 1 << 20,
		Probe:          true,
	}, append(base, opts...)...)
	return h
}

func (h *harness) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := h.sessions.Start(context.Background())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s
}

func (h *harness) assertTempDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %d", len(entries))
	}
}

var errBoom = errors.New("boom")
