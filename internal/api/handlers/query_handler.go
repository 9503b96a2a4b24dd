package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/providers/stt"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

type QueryHandler struct {
	svc services.QueryService
}

func NewQueryHandler(svc services.QueryService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// Transcribe turns a recorded question (multipart field "audio") into query text.
func (h *QueryHandler) Transcribe(c *gin.Context) {
	const op = "QueryHandler.Transcribe"

	if !h.svc.Enabled() {
		writeError(c, utils.E(utils.CodeFailedPrecondition, op, "Spoken questions are not enabled on this server.", nil))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, stt.MaxSyncAudioBytes+multipartSlack)
	fh, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, utils.E(utils.CodeTooLarge, op, "The recording is too long. Keep spoken questions under a minute.", err))
			return
		}
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing multipart field 'audio'", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to open upload", err))
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(io.LimitReader(f, stt.MaxSyncAudioBytes+1))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "could not read the recording", err))
		return
	}

	// browsers label recordings inconsistently; trust the bytes over the header
	mime := mimetype.Detect(audio).String()
	if _, ok := stt.FormatFor(mime); !ok {
		mime = fh.Header.Get("Content-Type")
	}

	out, err := h.svc.Transcribe(c.Request.Context(), audio, mime, c.PostForm("language"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
