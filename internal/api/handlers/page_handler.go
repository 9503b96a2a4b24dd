package handlers

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/prompt"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// the page still renders without a voice picker when the list is slow
const pageVoicesTimeout = 3 * time.Second

type pageData struct {
	View          services.SessionView
	FocusAreas    []string
	DetailLevels  []prompt.DetailLevel
	DefaultDetail prompt.DetailLevel
	SearchEnabled bool
	AudioEnabled  bool
	Voices        []models.Voice
}

// PageHandler serves the browser UI: a single page plus form actions that
// redirect back to it.
type PageHandler struct {
	sessions      services.SessionService
	analyses      services.AnalysisService
	audio         services.AudioService
	forms         *AnalysisHandler
	defaults      prompt.Config
	searchEnabled bool
	logger        *logrus.Logger
}

func NewPageHandler(
	sessions services.SessionService,
	analyses services.AnalysisService,
	audio services.AudioService,
	forms *AnalysisHandler,
	defaults prompt.Config,
	searchEnabled bool,
	l *logrus.Logger,
) *PageHandler {
	if l == nil {
		l = logger.Discard()
	}
	return &PageHandler{
		sessions:      sessions,
		analyses:      analyses,
		audio:         audio,
		forms:         forms,
		defaults:      defaults,
		searchEnabled: searchEnabled,
		logger:        l,
	}
}

// Index renders the current session. It never mutates it.
func (h *PageHandler) Index(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	view, err := h.sessions.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("busy") != "" && view.Notice == nil {
		view.Notice = &models.Notice{Level: models.NoticeWarning, Message: services.BusyMessage}
	}

	data := pageData{
		View:          view,
		FocusAreas:    h.defaults.FocusAreas,
		DetailLevels:  []prompt.DetailLevel{prompt.DetailBrief, prompt.DetailStandard, prompt.DetailThorough},
		DefaultDetail: h.defaults.DetailLevel,
		SearchEnabled: h.searchEnabled,
		AudioEnabled:  h.audio.Enabled(),
	}
	if data.AudioEnabled && view.Analysis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pageVoicesTimeout)
		voices, err := h.audio.Voices(ctx)
		cancel()
		if err != nil {
			h.logger.WithError(err).Warn("voice list unavailable for page")
		}
		data.Voices = voices
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		writeError(c, utils.E(utils.CodeInternal, "PageHandler.Index", "failed to render page", err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *PageHandler) Analyze(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	req, closer, err := h.forms.readAnalyzeRequest(c)
	if closer != nil {
		defer closer.Close()
	}
	if err == nil {
		// the service records its own failures on the session
		_, err = h.analyses.Analyze(c.Request.Context(), sess, req, nil)
		if err != nil && !utils.IsCode(err, utils.CodeFailedPrecondition) {
			err = nil
		}
	}
	h.back(c, sess, err)
}

func (h *PageHandler) Audio(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	_, err := h.audio.Generate(c.Request.Context(), sess, services.AudioRequest{Voice: c.PostForm("voice")})
	h.back(c, sess, err)
}

func (h *PageHandler) Reset(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	h.back(c, sess, h.sessions.Reset(c.Request.Context(), sess))
}

// Toggle flips one visibility flag named by the "flag" form field.
func (h *PageHandler) Toggle(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	var patch services.FlagsPatch
	switch c.PostForm("flag") {
	case "show_analysis":
		v := !sess.Flags.ShowAnalysis
		patch.ShowAnalysis = &v
	case "show_audio_panel":
		v := !sess.Flags.ShowAudioPanel
		patch.ShowAudioPanel = &v
	case "show_script":
		v := !sess.Flags.ShowScript
		patch.ShowScript = &v
	default:
		h.back(c, sess, utils.E(utils.CodeInvalidArgument, "PageHandler.Toggle", "unknown flag", nil))
		return
	}
	h.back(c, sess, h.sessions.SetFlags(c.Request.Context(), sess, patch))
}

// back records err as the session notice and redirects to the page.
func (h *PageHandler) back(c *gin.Context, sess *models.Session, err error) {
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	_ = c.Error(err)
	// a busy session is owned by another request; writing to it would race
	release, aerr := h.sessions.Acquire(sess.SessionID)
	if aerr != nil || utils.IsCode(err, utils.CodeFailedPrecondition) && utils.UserMessage(err) == services.BusyMessage {
		if release != nil {
			release()
		}
		c.Redirect(http.StatusSeeOther, "/?busy=1")
		return
	}
	defer release()

	level := models.NoticeError
	if utils.HTTPStatus(err) < 500 {
		level = models.NoticeWarning
	}
	sess.Notice = &models.Notice{Level: level, Message: utils.UserMessage(err)}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()
	if serr := h.sessions.Save(ctx, sess); serr != nil {
		h.logger.WithError(serr).Warn("failed to record notice on session")
	}
	c.Redirect(http.StatusSeeOther, "/")
}
