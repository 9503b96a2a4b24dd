package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

func dialWS(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(ts.router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/analyze", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns events up to and including the first terminal one.
func readUntil(t *testing.T, conn *websocket.Conn) []services.Event {
	t.Helper()
	var events []services.Event
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var e services.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("read: %v (events so far %+v)", err, events)
		}
		events = append(events, e)
		if e.Type == services.EventComplete || e.Type == services.EventError {
			return events
		}
	}
}

func TestWSAnalyzeURL(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(wsClientMsg{Type: "analyze_url", Query: "q", VideoURL: "https://youtu.be/dQw4w9WgXcQ"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	events := readUntil(t, conn)

	last := events[len(events)-1]
	if last.Type != services.EventComplete || last.Analysis == nil || last.Analysis.Text != stanceMarkdown {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != services.EventChunk || events[0].Text != stanceMarkdown {
		t.Fatalf("expected a streamed chunk first, got %+v", events[0])
	}
	got, _ := ts.analysis.request()
	if !got.Stream || got.VideoURL == "" {
		t.Fatalf("service got %+v", got)
	}
}

func TestWSUpload(t *testing.T) {
	ts := newTestServer(t)
	conn := dialWS(t, ts)

	if err := conn.WriteJSON(wsClientMsg{Type: "upload_start", Query: "q", FileName: "clip.mp4"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, part := range []string{"first-", "second-", "third"} {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(part)); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	if err := conn.WriteJSON(wsClientMsg{Type: "upload_end"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := readUntil(t, conn)
	if events[len(events)-1].Type != services.EventComplete {
		t.Fatalf("events = %+v", events)
	}
	got, upload := ts.analysis.request()
	if got.FileName != "clip.mp4" || string(upload) != "first-second-third" {
		t.Fatalf("service got %q with %q", got.FileName, upload)
	}
}

func TestWSErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.analysis.err = utils.E(utils.CodeTimeout, "Poller.Wait", "video processing did not finish in time", nil)
	conn := dialWS(t, ts)

	tests := []struct {
		name string
		send func() error
		code utils.Code
	}{
		{"invalid json", func() error {
			return conn.WriteMessage(websocket.TextMessage, []byte("{"))
		}, utils.CodeInvalidArgument},
		{"unknown type", func() error { return conn.WriteJSON(wsClientMsg{Type: "dance"}) }, utils.CodeInvalidArgument},
		{"bad detail level", func() error {
			return conn.WriteJSON(wsClientMsg{Type: "analyze_url", Query: "q", VideoURL: "x", DetailLevel: "epic"})
		}, utils.CodeInvalidArgument},
		{"analysis failure", func() error {
			return conn.WriteJSON(wsClientMsg{Type: "analyze_url", Query: "q", VideoURL: "x"})
		}, utils.CodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(); err != nil {
				t.Fatalf("write: %v", err)
			}
			events := readUntil(t, conn)
			last := events[len(events)-1]
			if last.Type != services.EventError || last.Code != tt.code || last.Message == "" {
				t.Fatalf("events = %+v", events)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.com", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://example.com/ws/analyze", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := sameOrigin(r); got != tt.want {
			t.Fatalf("sameOrigin(%q) = %v", tt.origin, got)
		}
	}
}
