package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/repositories/kv"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

func TestSessionTokens(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour, false)
	raw, err := tokens.Issue("s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	id, err := tokens.Parse(raw)
	if err != nil || id != "s1" {
		t.Fatalf("parse = %q, %v", id, err)
	}

	other := NewSessionTokens("other-secret", time.Hour, false)
	if _, err := other.Parse(raw); !utils.IsCode(err, utils.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for wrong secret, got %v", err)
	}

	late := NewSessionTokens("secret", time.Hour, false)
	late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := late.Parse(raw); !utils.IsCode(err, utils.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED for expired token, got %v", err)
	}

	if _, err := tokens.Parse("not-a-token"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}

func newSessionRouter(tokens *SessionTokens, sessions services.SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Session(tokens, sessions))
	r.GET("/whoami", func(c *gin.Context) {
		s, ok := CurrentSession(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, s.SessionID)
	})
	return r
}

func TestSessionMiddleware(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour, false)
	sessions := services.NewSessionService(kv.NewSessionRepo(cache.NewMemoryCache()), time.Hour)
	r := newSessionRouter(tokens, sessions)

	// first visit gets a new session and a cookie
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if w.Code != http.StatusOK || w.Body.String() == "" {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}
	first := w.Body.String()

	var cookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == SessionCookie {
			cookie = ck
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie not set: %+v", w.Result().Cookies())
	}

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		same    bool
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(cookie) }, true},
		{"bearer", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+w.Header().Get(TokenHeader))
		}, true},
		{"tampered", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie.Value + "x"})
		}, false},
		{"none", func(r *http.Request) {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Body.String() == first; got != tt.same {
				t.Fatalf("same session = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestSessionMiddlewareReplacesExpiredSession(t *testing.T) {
	tokens := NewSessionTokens("secret", time.Hour, false)
	sessions := services.NewSessionService(kv.NewSessionRepo(cache.NewMemoryCache()), time.Hour)
	r := newSessionRouter(tokens, sessions)

	// valid token for a session the store no longer has
	raw, _ := tokens.Issue("gone")
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: raw})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() == "gone" || w.Body.String() == "" {
		t.Fatalf("status = %d body = %q", w.Code, w.Body.String())
	}
}
