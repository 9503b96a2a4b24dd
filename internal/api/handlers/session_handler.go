package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	view, err := h.svc.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) Flags(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	var patch services.FlagsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Flags", "invalid request body", err))
		return
	}
	if err := h.svc.SetFlags(c.Request.Context(), sess, patch); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Flags)
}

// Reset clears the analysis and audio but keeps the session.
func (h *SessionHandler) Reset(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	if err := h.svc.Reset(c.Request.Context(), sess); err != nil {
		writeError(c, err)
		return
	}

	view, err := h.svc.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
