package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/sagecreek/internal/api/handlers"
	"github.com/yoockh/sagecreek/internal/api/middleware"
	"github.com/yoockh/sagecreek/internal/services"
)

type Deps struct {
	Logger   *logrus.Logger
	Tokens   *middleware.SessionTokens
	Sessions services.SessionService

	Health   *handlers.HealthHandler
	Page     *handlers.PageHandler
	Session  *handlers.SessionHandler
	Analysis *handlers.AnalysisHandler
	Audio    *handlers.AudioHandler
	Query    *handlers.QueryHandler
	WS       *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger(d.Logger, "/ping", "/healthz"))

	r.GET("/ping", d.Health.Ping)
	r.GET("/healthz", d.Health.Healthz)

	// everything below runs against the caller's session
	s := r.Group("/")
	s.Use(middleware.Session(d.Tokens, d.Sessions))

	s.GET("/", d.Page.Index)
	s.POST("/analyze", d.Page.Analyze)
	s.POST("/audio", d.Page.Audio)
	s.POST("/flags", d.Page.Toggle)
	s.POST("/reset", d.Page.Reset)

	api := s.Group("/api")
	api.GET("/session", d.Session.Get)
	api.PATCH("/session/flags", d.Session.Flags)
	api.DELETE("/session", d.Session.Reset)

	api.POST("/analyses", d.Analysis.Create)
	api.GET("/analyses/current", d.Analysis.Current)
	api.GET("/analyses/current/download", d.Analysis.Download)

	api.GET("/voices", d.Audio.Voices)
	api.POST("/audio", d.Audio.Generate)
	api.GET("/audio/current/download", d.Audio.Download)

	api.POST("/query/transcribe", d.Query.Transcribe)

	// WebSocket
	s.GET("/ws/analyze", d.WS.Analyze)
}
