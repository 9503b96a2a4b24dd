package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/providers/tts"
	"github.com/yoockh/sagecreek/internal/render"
	"github.com/yoockh/sagecreek/internal/utils"
)

const (
	voicesCacheTTL  = time.Hour
	voicesRetryWait = time.Minute
	defaultMaxChars = 4500
)

type AudioRequest struct {
	Voice string `json:"voice"`
}

type AudioService interface {
	Enabled() bool
	Voices(ctx context.Context) ([]models.Voice, error)
	Generate(ctx context.Context, s *models.Session, req AudioRequest) (*models.AudioArtifact, error)
}

type AudioConfig struct {
	DefaultVoiceID string
	MaxScriptChars int
}

type audioService struct {
	sessions SessionService
	provider tts.Provider
	cache    cache.Cache
	cfg      AudioConfig
	logger   *logrus.Logger
	now      func() time.Time

	mu          sync.Mutex
	voicesDown  time.Time // no provider calls before this
	voicesCause error
}

// NewAudioService accepts a nil provider; every call then reports that audio is not configured.
func NewAudioService(sessions SessionService, provider tts.Provider, c cache.Cache, cfg AudioConfig, l *logrus.Logger) AudioService {
	if cfg.MaxScriptChars <= 0 {
		cfg.MaxScriptChars = defaultMaxChars
	}
	if l == nil {
		l = logger.Discard()
	}
	return &audioService{
		sessions: sessions,
		provider: provider,
		cache:    c,
		cfg:      cfg,
		logger:   l,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *audioService) Enabled() bool { return a.provider != nil }

func (a *audioService) notConfigured(op string) error {
	return utils.E(utils.CodeFailedPrecondition, op, "Audio is not configured on this server.", nil)
}

func (a *audioService) Voices(ctx context.Context) ([]models.Voice, error) {
	const op = "AudioService.Voices"
	if a.provider == nil {
		return nil, a.notConfigured(op)
	}

	key := "tts:voices:" + a.provider.Name()
	if a.cache != nil {
		var cached []models.Voice
		if hit, err := a.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	a.mu.Lock()
	down, cause := a.voicesDown, a.voicesCause
	a.mu.Unlock()
	if a.now().Before(down) {
		return nil, utils.E(utils.CodeUnavailable, op, "voice list is temporarily unavailable", cause)
	}

	voices, err := a.provider.ListVoices(ctx)
	if err != nil {
		// a slow provider counts as down; a caller that went away does not
		if !errors.Is(ctx.Err(), context.Canceled) {
			a.mu.Lock()
			a.voicesDown, a.voicesCause = a.now().Add(voicesRetryWait), err
			a.mu.Unlock()
		}
		return nil, err
	}
	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, key, voices, voicesCacheTTL); err != nil {
			a.logger.WithError(err).Warn("failed to cache voice list")
		}
	}
	return voices, nil
}

func (a *audioService) Generate(ctx context.Context, s *models.Session, req AudioRequest) (*models.AudioArtifact, error) {
	const op = "AudioService.Generate"

	if a.provider == nil {
		return nil, a.notConfigured(op)
	}
	if s == nil || s.Analysis == nil {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "Run an analysis before generating audio.", nil)
	}

	release, err := a.sessions.Acquire(s.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	script := render.Script(s.Analysis.Text, a.cfg.MaxScriptChars)
	if script == "" {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "The analysis has no text to read aloud.", nil)
	}

	log := a.logger.WithFields(logrus.Fields{"session_id": s.SessionID, "analysis_id": s.Analysis.ID})

	// a failed voice listing still lets the default voice speak
	voices, err := a.Voices(ctx)
	if err != nil {
		log.WithError(err).Warn("voice list unavailable, using default voice")
	}
	voice := tts.ResolveVoice(voices, req.Voice, a.cfg.DefaultVoiceID)
	if req.Voice != "" && !voiceMatches(voice, req.Voice) {
		log.WithFields(logrus.Fields{"requested": req.Voice, "voice_id": voice.ID}).Info("voice not found, using default")
	}

	audio, mime, err := a.provider.Synthesize(ctx, voice.ID, script)
	if err != nil {
		return nil, err
	}

	art := &models.AudioArtifact{
		AnalysisID: s.Analysis.ID,
		Script:     script,
		VoiceID:    voice.ID,
		VoiceName:  voice.Name,
		MIMEType:   mime,
		Bytes:      audio,
		CreatedAt:  a.now(),
	}
	prev := *s
	s.SetAudio(art)
	if err := a.sessions.Save(ctx, s); err != nil {
		*s = prev
		return nil, err
	}
	log.WithFields(logrus.Fields{"voice_id": voice.ID, "bytes": len(audio)}).Info("audio generated")
	return art, nil
}

func voiceMatches(v models.Voice, want string) bool {
	return equalFold(v.ID, want) || equalFold(v.Name, want)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
