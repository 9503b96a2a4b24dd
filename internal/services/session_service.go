package services

import (
	"context"
	"errors"
	"html/template"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/render"
	"github.com/yoockh/sagecreek/internal/repositories"
	"github.com/yoockh/sagecreek/internal/utils"
)

const DefaultSessionTTL = 24 * time.Hour

// BusyMessage is shown when a second action arrives while one is still running.
const BusyMessage = "Another request for this session is still running. Wait for it to finish."

type SessionService interface {
	Start(ctx context.Context) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Resume returns the session, or a fresh one when it is unknown or expired.
	Resume(ctx context.Context, sessionID string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	View(s *models.Session) (SessionView, error)
	SetFlags(ctx context.Context, s *models.Session, patch FlagsPatch) error
	Reset(ctx context.Context, s *models.Session) error
	// Acquire guards a long-running action; a second action on the same session fails fast.
	Acquire(sessionID string) (release func(), err error)
}

type FlagsPatch struct {
	ShowAnalysis   *bool `json:"show_analysis"`
	ShowAudioPanel *bool `json:"show_audio_panel"`
	ShowScript     *bool `json:"show_script"`
}

type SessionView struct {
	SessionID string         `json:"session_id"`
	Flags     models.UIFlags `json:"flags"`
	Notice    *models.Notice `json:"notice,omitempty"`
	Analysis  *AnalysisView  `json:"analysis,omitempty"`
	Audio     *AudioView     `json:"audio,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
}

type AnalysisView struct {
	ID           string             `json:"id"`
	Source       models.VideoSource `json:"source"`
	SourceRef    string             `json:"source_ref"`
	Query        string             `json:"query"`
	Markdown     string             `json:"markdown"`
	HTML         template.HTML      `json:"html"`
	Model        string             `json:"model"`
	CreatedAt    time.Time          `json:"created_at"`
	DownloadName string             `json:"download_name"`
}

type AudioView struct {
	VoiceID      string `json:"voice_id"`
	VoiceName    string `json:"voice_name"`
	MIMEType     string `json:"mime_type"`
	SizeBytes    int    `json:"size_bytes"`
	Script       string `json:"script,omitempty"`
	DownloadName string `json:"download_name"`
}

type sessionService struct {
	sessions repositories.SessionRepository
	ttl      time.Duration
	now      func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

func NewSessionService(sessions repositories.SessionRepository, ttl time.Duration) SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &sessionService{
		sessions: sessions,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		active:   map[string]struct{}{},
	}
}

func (s *sessionService) Start(ctx context.Context) (*models.Session, error) {
	const op = "SessionService.Start"

	now := s.now()
	session := &models.Session{
		SessionID: uuid.NewString(),
		Flags:     models.UIFlags{ShowAnalysis: true},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "SessionService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	out, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to load session", err)
	}
	return out, nil
}

func (s *sessionService) Resume(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID != "" {
		out, err := s.Get(ctx, sessionID)
		if err == nil {
			return out, nil
		}
		if !utils.IsCode(err, utils.CodeNotFound) {
			return nil, err
		}
	}
	return s.Start(ctx)
}

// Save slides the expiry forward; sessions live as long as they are used.
func (s *sessionService) Save(ctx context.Context, session *models.Session) error {
	const op = "SessionService.Save"

	if session == nil || session.SessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session is required", nil)
	}
	now := s.now()
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if err := s.sessions.Save(ctx, session); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to save session", err)
	}
	return nil
}

// View is a pure function of the session; equal sessions render identically.
func (s *sessionService) View(session *models.Session) (SessionView, error) {
	const op = "SessionService.View"

	if session == nil {
		return SessionView{}, utils.E(utils.CodeInvalidArgument, op, "session is required", nil)
	}
	v := SessionView{
		SessionID: session.SessionID,
		Flags:     session.Flags,
		Notice:    session.Notice,
		ExpiresAt: session.ExpiresAt,
	}

	if a := session.Analysis; a != nil {
		html, err := render.HTML(a.Text)
		if err != nil {
			return SessionView{}, utils.E(utils.CodeInternal, op, "failed to render analysis", err)
		}
		v.Analysis = &AnalysisView{
			ID:           a.ID,
			Source:       a.Source,
			SourceRef:    a.SourceRef,
			Query:        a.Query,
			Markdown:     a.Text,
			HTML:         html,
			Model:        a.Model,
			CreatedAt:    a.CreatedAt,
			DownloadName: render.MarkdownFileName(a.CreatedAt),
		}
	}

	if au := session.Audio; au != nil {
		v.Audio = &AudioView{
			VoiceID:      au.VoiceID,
			VoiceName:    au.VoiceName,
			MIMEType:     au.MIMEType,
			SizeBytes:    len(au.Bytes),
			DownloadName: render.AudioFileName(au.CreatedAt),
		}
		if session.Flags.ShowScript {
			v.Audio.Script = au.Script
		}
	}
	return v, nil
}

// SetFlags and Reset fail fast while another action owns the session.
func (s *sessionService) SetFlags(ctx context.Context, session *models.Session, patch FlagsPatch) error {
	release, err := s.Acquire(session.SessionID)
	if err != nil {
		return err
	}
	defer release()

	if patch.ShowAnalysis != nil {
		session.Flags.ShowAnalysis = *patch.ShowAnalysis
	}
	if patch.ShowAudioPanel != nil {
		session.Flags.ShowAudioPanel = *patch.ShowAudioPanel
	}
	if patch.ShowScript != nil {
		session.Flags.ShowScript = *patch.ShowScript
	}
	return s.Save(ctx, session)
}

func (s *sessionService) Reset(ctx context.Context, session *models.Session) error {
	release, err := s.Acquire(session.SessionID)
	if err != nil {
		return err
	}
	defer release()

	session.Reset()
	session.Flags.ShowAnalysis = true
	return s.Save(ctx, session)
}

func (s *sessionService) Acquire(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[sessionID]; busy {
		return nil, utils.E(utils.CodeFailedPrecondition, "SessionService.Acquire", BusyMessage, nil)
	}
	s.active[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.active, sessionID)
			s.mu.Unlock()
		})
	}, nil
}
