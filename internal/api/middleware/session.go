package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/utils"
)

const (
	SessionCookie = "sagecreek_session"
	// TokenHeader carries a refreshed token for clients that do not keep cookies.
	TokenHeader = "X-Session-Token"

	ctxSession   = "session"
	ctxSessionID = "session_id"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionTokens signs and verifies the HS256 token that names a session.
// The token carries nothing but the session id; state stays server side.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	secure bool
	now    func() time.Time
}

func NewSessionTokens(secret string, ttl time.Duration, secureCookie bool) *SessionTokens {
	if ttl <= 0 {
		ttl = services.DefaultSessionTTL
	}
	return &SessionTokens{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "sagecreek",
		secure: secureCookie,
		now:    time.Now,
	}
}

func (t *SessionTokens) Issue(sessionID string) (string, error) {
	now := t.now()
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sessionID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse returns the session id named by raw.
func (t *SessionTokens) Parse(raw string) (string, error) {
	const op = "SessionTokens.Parse"

	claims := &sessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || tok == nil || !tok.Valid {
		if err == nil {
			err = errors.New("token is not valid")
		}
		return "", utils.E(utils.CodeUnauthorized, op, "invalid session token", err)
	}
	if claims.Subject == "" {
		return "", utils.E(utils.CodeUnauthorized, op, "missing subject", nil)
	}
	return claims.Subject, nil
}

func tokenFromRequest(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); raw != "" {
			return raw
		}
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return v
	}
	return ""
}

// Session resolves the caller's session from the token cookie or bearer header.
// A missing, invalid or expired token starts a fresh session; the page never
// shows an authentication error.
func Session(tokens *SessionTokens, sessions services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var sessionID string
		if raw := tokenFromRequest(c); raw != "" {
			if id, err := tokens.Parse(raw); err == nil {
				sessionID = id
			}
		}

		sess, err := sessions.Resume(ctx, sessionID)
		if err != nil {
			c.AbortWithStatusJSON(utils.HTTPStatus(err), apiError{
				Code:    utils.CodeOf(err),
				Message: utils.UserMessage(err),
			})
			return
		}

		// refreshed on every request so the cookie follows the sliding expiry
		raw, err := tokens.Issue(sess.SessionID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "failed to issue session token",
			})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, raw, int(tokens.ttl.Seconds()), "/", "", tokens.secure, true)
		c.Header(TokenHeader, raw)

		c.Set(ctxSession, sess)
		c.Set(ctxSessionID, sess.SessionID)
		c.Next()
	}
}

// CurrentSession returns the session attached by Session.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}
	s, ok := v.(*models.Session)
	return s, ok && s != nil
}
