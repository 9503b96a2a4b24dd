package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/prompt"
	"github.com/yoockh/sagecreek/internal/render"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

// form overhead allowed on top of the video itself
const multipartSlack = 1 << 20

type AnalysisHandler struct {
	sessions services.SessionService
	svc      services.AnalysisService
	maxBody  int64
}

func NewAnalysisHandler(sessions services.SessionService, svc services.AnalysisService, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{sessions: sessions, svc: svc, maxBody: maxUploadBytes + multipartSlack}
}

// AnalyzeBody is the JSON form of an analysis request (link analyses only).
type AnalyzeBody struct {
	Query       string   `json:"query"`
	VideoURL    string   `json:"video_url"`
	FocusAreas  []string `json:"focus_areas"`
	DetailLevel string   `json:"detail_level"`
	WebSearch   bool     `json:"web_search"`
}

func (b AnalyzeBody) request() (services.AnalyzeRequest, error) {
	level, err := prompt.ParseDetailLevel(b.DetailLevel)
	if err != nil {
		return services.AnalyzeRequest{}, err
	}
	return services.AnalyzeRequest{
		Query:       b.Query,
		VideoURL:    b.VideoURL,
		FocusAreas:  splitList(b.FocusAreas),
		DetailLevel: level,
		WebSearch:   b.WebSearch,
	}, nil
}

// readAnalyzeRequest accepts JSON or a multipart/urlencoded form with an
// optional "video" file. The returned closer releases the uploaded part.
func (h *AnalysisHandler) readAnalyzeRequest(c *gin.Context) (services.AnalyzeRequest, io.Closer, error) {
	const op = "AnalysisHandler.readAnalyzeRequest"

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body AnalyzeBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return services.AnalyzeRequest{}, nil, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err)
		}
		req, err := body.request()
		return req, nil, err
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	if err := formError(op, c.Request.ParseMultipartForm(32<<20)); err != nil {
		return services.AnalyzeRequest{}, nil, err
	}
	body := AnalyzeBody{
		Query:       c.PostForm("query"),
		VideoURL:    c.PostForm("video_url"),
		FocusAreas:  c.PostFormArray("focus_areas"),
		DetailLevel: c.PostForm("detail_level"),
		WebSearch:   parseBool(c.PostForm("web_search")),
	}
	req, err := body.request()
	if err != nil || c.Request.MultipartForm == nil {
		return req, nil, err
	}

	fh, err := c.FormFile("video")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil, nil
	case err != nil:
		return req, nil, utils.E(utils.CodeInvalidArgument, op, "could not read the uploaded video", err)
	}
	if fh.Filename == "" || fh.Size == 0 {
		// an empty file input still submits a part
		return req, nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return req, nil, utils.E(utils.CodeInternal, op, "failed to open upload", err)
	}
	req.Upload = f
	req.FileName = fh.Filename
	return req, f, nil
}

func formError(op string, err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, http.ErrNotMultipart):
		return nil
	case errors.As(err, &tooLarge):
		return utils.E(utils.CodeTooLarge, op, "upload exceeds the size limit", err)
	default:
		return utils.E(utils.CodeInvalidArgument, op, "invalid form body", err)
	}
}

func (h *AnalysisHandler) Create(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	req, closer, err := h.readAnalyzeRequest(c)
	if closer != nil {
		defer closer.Close()
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := h.svc.Analyze(c.Request.Context(), sess, req, nil); err != nil {
		writeError(c, err)
		return
	}

	view, err := h.sessions.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Analysis)
}

func (h *AnalysisHandler) Current(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	if sess.Analysis == nil {
		writeError(c, utils.E(utils.CodeNotFound, "AnalysisHandler.Current", "No analysis yet. Upload a video to get started.", nil))
		return
	}

	view, err := h.sessions.View(sess)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Analysis)
}

// Download returns the current analysis as a markdown attachment.
func (h *AnalysisHandler) Download(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}
	a := sess.Analysis
	if a == nil {
		writeError(c, utils.E(utils.CodeNotFound, "AnalysisHandler.Download", "No analysis yet. Upload a video to get started.", nil))
		return
	}

	attachment(c, render.MarkdownFileName(a.CreatedAt))
	c.Data(http.StatusOK, render.MarkdownContentType, []byte(a.Text))
}
