package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"github.com/yoockh/sagecreek/internal/utils"
)

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		got, err := ParseVideoID(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseVideoID(%q) = %q, %v", tt.in, got, err)
		}
	}

	for _, bad := range []string{"", "not a url", "https://vimeo.com/12345", "https://www.youtube.com/watch?v=short", "https://www.youtube.com/channel/UCxyz"} {
		if _, err := ParseVideoID(bad); !utils.IsCode(err, utils.CodeInvalidArgument) {
			t.Fatalf("ParseVideoID(%q) expected INVALID_ARGUMENT, got %v", bad, err)
		}
	}
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"PT10S", 10},
		{"PT1M30S", 90},
		{"PT1H2M3S", 3723},
		{"P1DT1S", 86401},
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseISODuration(tt.in); got != tt.want {
			t.Fatalf("parseISODuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClientVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("id") != "dQw4w9WgXcQ" {
			_, _ = io.WriteString(w, `{"items":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"State Finals 2024","channelTitle":"Sage Creek Wrestling"},"contentDetails":{"duration":"PT6M5S"}}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), "", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	v, err := c.Video(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v.Title != "State Finals 2024" || v.Channel != "Sage Creek Wrestling" || v.DurationSeconds != 365 {
		t.Fatalf("unexpected video %+v", v)
	}
	if v.URL != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("url = %q", v.URL)
	}

	if _, err := c.Video(context.Background(), "https://youtu.be/aaaaaaaaaaa"); !utils.IsCode(err, utils.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
