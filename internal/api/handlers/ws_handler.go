package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 25 * time.Second
	wsWriteWait  = 10 * time.Second
)

var errUploadClosed = errors.New("analysis finished before the upload ended")

// WSHandler streams one analysis at a time per connection. Clients send
// either {"type":"analyze_url"} or {"type":"upload_start"} followed by binary
// video frames and {"type":"upload_end"}; every pipeline event is sent back
// as a JSON text frame.
type WSHandler struct {
	svc      services.AnalysisService
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(svc services.AnalysisService, l *logrus.Logger) *WSHandler {
	if l == nil {
		l = logger.Discard()
	}
	return &WSHandler{
		svc:    svc,
		logger: l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     sameOrigin,
		},
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

type wsClientMsg struct {
	Type        string   `json:"type"` // analyze_url|upload_start|upload_end|cancel
	Query       string   `json:"query"`
	VideoURL    string   `json:"video_url"`
	FileName    string   `json:"file_name"`
	FocusAreas  []string `json:"focus_areas"`
	DetailLevel string   `json:"detail_level"`
	WebSearch   bool     `json:"web_search"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) fail(err error) {
	_ = w.writeJSON(services.Event{Type: services.EventError, Code: utils.CodeOf(err), Message: utils.UserMessage(err)})
}

type wsJob struct {
	cancel context.CancelFunc
	upload *io.PipeWriter
	done   chan struct{}
}

func (j *wsJob) running() bool {
	if j == nil {
		return false
	}
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

func (h *WSHandler) Analyze(c *gin.Context) {
	sess, ok := requireSession(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	log := h.logger.WithField("session_id", sess.SessionID)

	go func() {
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := wc.ping(); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var job *wsJob
	defer func() {
		if job != nil {
			job.cancel()
			if job.upload != nil {
				_ = job.upload.CloseWithError(io.ErrUnexpectedEOF)
			}
			<-job.done
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read ended")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if kind == websocket.BinaryMessage {
			if job.running() && job.upload != nil {
				// write errors mean the analysis already gave up on the upload
				_, _ = job.upload.Write(data)
			}
			continue
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.fail(utils.E(utils.CodeInvalidArgument, "WSHandler.Analyze", "invalid json", err))
			continue
		}

		switch msg.Type {
		case "analyze_url", "upload_start":
			if job.running() {
				wc.fail(utils.E(utils.CodeFailedPrecondition, "WSHandler.Analyze", services.BusyMessage, nil))
				continue
			}
			req, err := AnalyzeBody{
				Query:       msg.Query,
				VideoURL:    msg.VideoURL,
				FocusAreas:  msg.FocusAreas,
				DetailLevel: msg.DetailLevel,
				WebSearch:   msg.WebSearch,
			}.request()
			if err != nil {
				wc.fail(err)
				continue
			}
			req.Stream = true
			job = h.start(ctx, sess, req, msg, wc, log)

		case "upload_end":
			if job != nil && job.upload != nil {
				_ = job.upload.Close()
				job.upload = nil
			}

		case "cancel":
			if job.running() {
				job.cancel()
			}

		default:
			wc.fail(utils.E(utils.CodeInvalidArgument, "WSHandler.Analyze", "unknown message type", nil))
		}
	}
}

func (h *WSHandler) start(ctx context.Context, sess *models.Session, req services.AnalyzeRequest, msg wsClientMsg, wc *wsConn, log *logrus.Entry) *wsJob {
	jctx, cancel := context.WithCancel(ctx)
	job := &wsJob{cancel: cancel, done: make(chan struct{})}

	var pr *io.PipeReader
	if msg.Type == "upload_start" {
		pr, job.upload = io.Pipe()
		req.Upload = pr
		req.FileName = msg.FileName
		req.VideoURL = ""
	}

	go func() {
		defer close(job.done)
		defer cancel()
		if pr != nil {
			// unblocks frame writes once the analysis stops reading
			defer pr.CloseWithError(errUploadClosed)
		}

		sink := func(e services.Event) {
			if err := wc.writeJSON(e); err != nil {
				log.WithError(err).Debug("websocket write failed")
			}
		}
		// failures are already reported through the sink
		_, _ = h.svc.Analyze(jctx, sess, req, sink)
	}()
	return job
}
