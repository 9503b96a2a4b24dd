package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/render"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

type AudioHandler struct {
	sessions services.SessionService
	svc      services.AudioService
}

func NewAudioHandler(sessions services.SessionService, svc services.AudioService) *AudioHandler {
	return &AudioHandler{sessions: sessions, svc: svc}
}

type VoicesResponse struct {
	Enabled bool           `json:"enabled"`
	Voices  []models.Voice `json:"voices"`
}

func (h *AudioHandler) Voices(c *gin.Context) {
	if !h.svc.Enabled() {
		c.JSON(http.StatusOK, VoicesResponse{Enabled: false, Voices: []models.Voice{}})
		return
	}
	voices, err := h.svc.Voices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, VoicesResponse{Enabled: true, Voices: voices})
}

func (h *AudioHandler) Generate(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	var req services.AudioRequest
	// an empty body selects the default voice
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AudioHandler.Generate", "invalid request body", err))
		return
	}

	if _, err := h.svc.Generate(c.Request.Context(), sess, req); err != nil {
		writeError(c, err)
		return
	}

	view, err := h.sessions.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Audio)
}

func (h *AudioHandler) Download(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	a := sess.Audio
	if a == nil || len(a.Bytes) == 0 {
		writeError(c, utils.E(utils.CodeNotFound, "AudioHandler.Download", "No audio yet. Generate audio from an analysis first.", nil))
		return
	}

	mime := a.MIMEType
	if mime == "" {
		mime = render.AudioContentType
	}
	// the page's audio element plays the same bytes inline
	if c.Query("inline") == "" {
		attachment(c, render.AudioFileName(a.CreatedAt))
	}
	c.Data(http.StatusOK, mime, a.Bytes)
}
