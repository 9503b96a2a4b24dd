package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/media"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/polling"
	"github.com/yoockh/sagecreek/internal/prompt"
	"github.com/yoockh/sagecreek/internal/providers/llm"
	"github.com/yoockh/sagecreek/internal/providers/search"
	"github.com/yoockh/sagecreek/internal/providers/youtube"
	"github.com/yoockh/sagecreek/internal/storage"
	"github.com/yoockh/sagecreek/internal/utils"
)

type AnalyzeRequest struct {
	Query string

	// Exactly one source: an upload (Upload + FileName) or a link (VideoURL).
	Upload   io.Reader
	FileName string
	VideoURL string

	FocusAreas  []string
	DetailLevel prompt.DetailLevel
	WebSearch   bool
	Stream      bool
}

type EventType string

const (
	EventStatus   EventType = "status"
	EventPoll     EventType = "poll"
	EventWarning  EventType = "warning"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

type Event struct {
	Type     EventType              `json:"type"`
	Stage    string                 `json:"stage,omitempty"`
	State    polling.State          `json:"state,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Code     utils.Code             `json:"code,omitempty"`
	Analysis *models.AnalysisResult `json:"analysis,omitempty"`
}

// EventSink receives progress for one analysis. It is called from the
// analyzing goroutine and must not block for long.
type EventSink func(Event)

type AnalysisService interface {
	Analyze(ctx context.Context, s *models.Session, req AnalyzeRequest, sink EventSink) (*models.AnalysisResult, error)
}

type AnalysisConfig struct {
	TempDir         string
	MaxUploadBytes  int64
	MaxVideoSeconds float64
	Probe           bool
	SearchLimit     int
}

// VideoLookup resolves public link metadata (youtube.Client).
type VideoLookup interface {
	Video(ctx context.Context, rawURL string) (youtube.Video, error)
}

type ProbeFunc func(ctx context.Context, path string) (media.Info, error)

type analysisService struct {
	sessions SessionService
	store    storage.Store
	model    llm.Provider
	poller   *polling.Poller
	builder  *prompt.Builder
	cfg      AnalysisConfig

	search search.Provider
	videos VideoLookup
	probe  ProbeFunc
	logger *logrus.Logger
	now    func() time.Time
}

type AnalysisOption func(*analysisService)

func WithSearch(p search.Provider) AnalysisOption {
	return func(a *analysisService) { a.search = p }
}

func WithVideoLookup(v VideoLookup) AnalysisOption {
	return func(a *analysisService) { a.videos = v }
}

func WithProbe(fn ProbeFunc) AnalysisOption {
	return func(a *analysisService) {
		if fn != nil {
			a.probe = fn
		}
	}
}

func WithAnalysisLogger(l *logrus.Logger) AnalysisOption {
	return func(a *analysisService) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAnalysisService(
	sessions SessionService,
	store storage.Store,
	model llm.Provider,
	poller *polling.Poller,
	builder *prompt.Builder,
	cfg AnalysisConfig,
	opts ...AnalysisOption,
) AnalysisService {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 3
	}
	a := &analysisService{
		sessions: sessions,
		store:    store,
		model:    model,
		poller:   poller,
		builder:  builder,
		cfg:      cfg,
		probe:    media.Probe,
		logger:   logger.Discard(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *analysisService) Analyze(ctx context.Context, s *models.Session, req AnalyzeRequest, sink EventSink) (*models.AnalysisResult, error) {
	const op = "AnalysisService.Analyze"

	if sink == nil {
		sink = func(Event) {}
	}
	if s == nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session is required", nil)
	}

	// held until the failure notice is saved too
	release, err := a.sessions.Acquire(s.SessionID)
	if err != nil {
		sink(Event{Type: EventError, Code: utils.CodeOf(err), Message: utils.UserMessage(err)})
		return nil, err
	}
	defer release()

	result, err := a.analyze(ctx, s, req, sink)
	if err != nil {
		a.fail(ctx, s, err, sink)
		return nil, err
	}
	return result, nil
}

func (a *analysisService) analyze(ctx context.Context, s *models.Session, req AnalyzeRequest, sink EventSink) (*models.AnalysisResult, error) {
	const op = "AnalysisService.Analyze"

	req.Query = strings.TrimSpace(req.Query)
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if req.Query == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "Please provide a question or topic for analysis.", nil)
	}
	if (req.Upload != nil) == (req.VideoURL != "") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "Upload a video or enter a YouTube link.", nil)
	}

	started := a.now()
	log := a.logger.WithFields(logrus.Fields{"session_id": s.SessionID, "op": op})

	var (
		llmReq    llm.Request
		promptReq = prompt.Request{Query: req.Query}
		result    = &models.AnalysisResult{ID: uuid.NewString(), Query: req.Query}
	)

	if req.Upload != nil {
		handle, info, cleanup, err := a.prepareUpload(ctx, req, sink, log)
		defer cleanup()
		if err != nil {
			return nil, err
		}
		llmReq.Video = &handle
		promptReq.Source = models.SourceUpload
		promptReq.FileName = req.FileName
		promptReq.DurationSeconds = info.DurationSeconds
		result.Source = models.SourceUpload
		result.SourceRef = req.FileName
	} else {
		video, err := a.prepareLink(ctx, req.VideoURL, sink, log)
		if err != nil {
			return nil, err
		}
		if err := a.checkDuration(video.DurationSeconds); err != nil {
			return nil, err
		}
		llmReq.VideoURL = video.URL
		promptReq.Source = models.SourceYouTube
		promptReq.VideoURL = video.URL
		promptReq.VideoTitle = video.Title
		promptReq.VideoChannel = video.Channel
		promptReq.DurationSeconds = video.DurationSeconds
		result.Source = models.SourceYouTube
		result.SourceRef = video.URL
	}

	if req.WebSearch && a.search != nil {
		promptReq.References = a.references(ctx, req.Query, sink, log)
	}

	payload, err := a.builder.BuildWith(a.builder.Config().With(req.FocusAreas, req.DetailLevel), promptReq)
	if err != nil {
		return nil, err
	}
	llmReq.SystemInstruction = payload.SystemInstruction
	llmReq.Prompt = payload.Prompt

	sink(Event{Type: EventStatus, Stage: "analyzing", Message: "Coach Steele is reviewing your video..."})
	text, err := a.generate(ctx, llmReq, req.Stream, sink)
	if err != nil {
		return nil, err
	}

	result.Text = text
	result.Model = a.model.Name()
	result.CreatedAt = a.now()
	result.DurationMS = result.CreatedAt.Sub(started).Milliseconds()

	prev := *s
	s.SetAnalysis(result)
	if err := a.sessions.Save(ctx, s); err != nil {
		*s = prev
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"analysis_id": result.ID,
		"source":      result.Source,
		"duration_ms": result.DurationMS,
		"chars":       len(result.Text),
	}).Info("analysis complete")

	sink(Event{Type: EventComplete, Analysis: result})
	return result, nil
}

// prepareUpload stages, validates, uploads and waits for the video. cleanup is
// always non-nil and removes both the local temp file and the remote copy.
func (a *analysisService) prepareUpload(ctx context.Context, req AnalyzeRequest, sink EventSink, log *logrus.Entry) (models.VideoHandle, media.Info, func(), error) {
	const op = "AnalysisService.prepareUpload"

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	var info media.Info

	ext, err := media.Ext(req.FileName)
	if err != nil {
		return models.VideoHandle{}, info, cleanup, err
	}

	sink(Event{Type: EventStatus, Stage: "receiving", Message: "Receiving video..."})
	tf, err := media.Stage(a.cfg.TempDir, ext, req.Upload, a.cfg.MaxUploadBytes)
	if err != nil {
		return models.VideoHandle{}, info, cleanup, err
	}
	cleanups = append(cleanups, func() {
		if err := tf.Remove(); err != nil {
			log.WithError(err).WithField("path", tf.Path).Warn("temp file cleanup failed")
		}
	})

	mime, err := media.Sniff(tf.Path)
	if err != nil {
		return models.VideoHandle{}, info, cleanup, err
	}
	if !media.AllowedVideo(mime, ext) {
		return models.VideoHandle{}, info, cleanup,
			utils.E(utils.CodeUnsupportedMedia, op, media.UnsupportedMessage, fmt.Errorf("sniffed %s for %s", mime, ext))
	}

	if a.cfg.Probe {
		info, err = a.probe(ctx, tf.Path)
		switch {
		case err == nil:
		case utils.IsCode(err, utils.CodeUnavailable):
			log.WithError(err).Warn("video probe unavailable, skipping inspection")
		default:
			return models.VideoHandle{}, info, cleanup, err
		}
		if err := a.checkDuration(info.DurationSeconds); err != nil {
			return models.VideoHandle{}, info, cleanup, err
		}
	}

	sink(Event{Type: EventStatus, Stage: "uploading", Message: "Uploading video..."})
	handle, err := a.store.Upload(ctx, tf.Path, media.MIMEForExt(ext), req.FileName)
	if err != nil {
		return models.VideoHandle{}, info, cleanup, err
	}
	cleanups = append(cleanups, func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := a.store.Delete(dctx, handle.Name); err != nil {
			log.WithError(err).WithField("file", handle.Name).Warn("remote file cleanup failed")
		}
	})
	log.WithFields(logrus.Fields{"file": handle.Name, "size": tf.Size, "mime": mime}).Info("video uploaded")

	sink(Event{Type: EventStatus, Stage: "processing", Message: "Processing video..."})
	outcome, err := a.poller.Wait(ctx, handle, a.store.Get, polling.Observer{
		OnTransition: func(_, to polling.State, _ models.VideoHandle) {
			sink(Event{Type: EventPoll, State: to})
		},
		OnWarn: func(elapsed time.Duration) {
			sink(Event{Type: EventWarning, Message: fmt.Sprintf(
				"Video processing is taking longer than expected (%s). Still waiting...", elapsed.Round(time.Second))})
		},
	})
	if err != nil {
		return models.VideoHandle{}, info, cleanup, err
	}
	return outcome.Handle, info, cleanup, nil
}

// checkDuration enforces MaxVideoSeconds; an unknown duration (0) passes.
func (a *analysisService) checkDuration(seconds float64) error {
	if a.cfg.MaxVideoSeconds <= 0 || seconds <= a.cfg.MaxVideoSeconds {
		return nil
	}
	return utils.E(utils.CodeTooLarge, "AnalysisService.checkDuration",
		fmt.Sprintf("The video is longer than %.0f seconds. Try a shorter video.", a.cfg.MaxVideoSeconds), nil)
}

func (a *analysisService) prepareLink(ctx context.Context, rawURL string, sink EventSink, log *logrus.Entry) (youtube.Video, error) {
	id, err := youtube.ParseVideoID(rawURL)
	if err != nil {
		return youtube.Video{}, err
	}
	video := youtube.Video{ID: id, URL: youtube.CanonicalURL(id)}
	if a.videos == nil {
		return video, nil
	}

	sink(Event{Type: EventStatus, Stage: "lookup", Message: "Looking up the video..."})
	meta, err := a.videos.Video(ctx, rawURL)
	switch {
	case err == nil:
		return meta, nil
	case utils.IsCode(err, utils.CodeNotFound):
		return youtube.Video{}, err
	case ctx.Err() != nil:
		return youtube.Video{}, ctx.Err()
	default:
		log.WithError(err).Warn("video metadata lookup failed, continuing without it")
		return video, nil
	}
}

func (a *analysisService) references(ctx context.Context, query string, sink EventSink, log *logrus.Entry) []prompt.Reference {
	sink(Event{Type: EventStatus, Stage: "searching", Message: "Searching the web..."})
	results, err := a.search.Search(ctx, query+" wrestling technique", a.cfg.SearchLimit)
	if err != nil {
		log.WithError(err).Warn("web search failed, continuing without references")
		return nil
	}
	refs := make([]prompt.Reference, 0, len(results))
	for _, r := range results {
		refs = append(refs, prompt.Reference{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return refs
}

func (a *analysisService) generate(ctx context.Context, req llm.Request, stream bool, sink EventSink) (string, error) {
	if !stream {
		return a.model.Generate(ctx, req)
	}

	chunks, errs := a.model.StreamAnswer(ctx, req)
	text, err := llm.Collect(ctx, chunks, errs, func(c string) {
		sink(Event{Type: EventChunk, Text: c})
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", utils.E(utils.CodeUpstreamFailed, "AnalysisService.generate", "model returned an empty answer", nil)
	}
	return text, nil
}

// fail records the user-facing message on the session; the previous analysis stays visible.
func (a *analysisService) fail(ctx context.Context, s *models.Session, err error, sink EventSink) {
	msg := utils.UserMessage(err)
	code := utils.CodeOf(err)

	entry := a.logger.WithFields(logrus.Fields{"session_id": s.SessionID, "code": code}).WithError(err)
	if utils.HTTPStatus(err) >= 500 {
		entry.Error("analysis failed")
	} else {
		entry.Info("analysis rejected")
	}

	level := models.NoticeError
	if code == utils.CodeInvalidArgument {
		level = models.NoticeWarning
	}
	s.Notice = &models.Notice{Level: level, Message: msg}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if serr := a.sessions.Save(sctx, s); serr != nil {
		a.logger.WithError(serr).Warn("failed to record analysis error on session")
	}
	sink(Event{Type: EventError, Code: code, Message: msg})
}
