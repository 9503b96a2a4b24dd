package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/yoockh/sagecreek/config"
	"github.com/yoockh/sagecreek/internal/api/handlers"
	"github.com/yoockh/sagecreek/internal/api/middleware"
	"github.com/yoockh/sagecreek/internal/api/routes"
	"github.com/yoockh/sagecreek/internal/cache"
	"github.com/yoockh/sagecreek/internal/logger"
	"github.com/yoockh/sagecreek/internal/polling"
	"github.com/yoockh/sagecreek/internal/prompt"
	"github.com/yoockh/sagecreek/internal/providers/llm"
	"github.com/yoockh/sagecreek/internal/providers/search"
	"github.com/yoockh/sagecreek/internal/providers/stt"
	"github.com/yoockh/sagecreek/internal/providers/tts"
	"github.com/yoockh/sagecreek/internal/providers/youtube"
	"github.com/yoockh/sagecreek/internal/repositories"
	"github.com/yoockh/sagecreek/internal/repositories/kv"
	mongorepo "github.com/yoockh/sagecreek/internal/repositories/mongo"
	"github.com/yoockh/sagecreek/internal/services"
	"github.com/yoockh/sagecreek/internal/storage"
	"github.com/yoockh/sagecreek/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	if generated, err := cfg.EnsureSessionSecret(); err != nil {
		l.WithError(err).Fatal("session secret")
	} else if generated {
		l.Warn("SESSION_SECRET is not set; using a random secret, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.HealthCheck{}

	// Session store
	var (
		sessionRepo repositories.SessionRepository
		appCache    cache.Cache
		memCache    *cache.MemoryCache
	)
	switch cfg.SessionStore {
	case "redis":
		if err := config.InitRedis(cfg.RedisAddr); err != nil {
			l.WithError(err).Fatal("Redis init error")
		}
		defer config.RedisClient.Close()
		appCache = cache.NewRedisCache(config.RedisClient, "sagecreek:")
		sessionRepo = kv.NewSessionRepo(appCache)
		checks["redis"] = func(ctx context.Context) error { return config.RedisClient.Ping(ctx).Err() }
		l.Info("Redis connected")
	case "mongo":
		if err := config.InitMongo(cfg.MongoURI); err != nil {
			l.WithError(err).Fatal("MongoDB init error")
		}
		defer func() { _ = config.MongoClient.Disconnect(context.Background()) }()
		if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
			l.WithError(err).Fatal("MongoDB index error")
		}
		sessionRepo = mongorepo.NewSessionRepo(config.MongoClient.Database(cfg.MongoDB))
		// voice lists stay process local
		memCache = cache.NewMemoryCache()
		appCache = memCache
		checks["mongo"] = func(ctx context.Context) error { return config.MongoClient.Ping(ctx, nil) }
		l.Info("MongoDB connected")
	default:
		memCache = cache.NewMemoryCache()
		appCache = memCache
		sessionRepo = kv.NewSessionRepo(memCache)
	}
	sessions := services.NewSessionService(sessionRepo, cfg.SessionTTL)

	// Inference and the file store it reads from
	var (
		store storage.Store
		model llm.Provider
	)
	switch cfg.InferenceBackend {
	case "vertex":
		vm, err := llm.NewVertexGemini(ctx, cfg.VertexProjectID, cfg.VertexLocation, cfg.GeminiModel)
		if err != nil {
			l.WithError(err).Fatal("Vertex init error")
		}
		gcs, err := storage.NewGCSStore(ctx, cfg.GCSBucket, "uploads")
		if err != nil {
			l.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		model, store = vm, gcs
	default:
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
		if err != nil {
			l.WithError(err).Fatal("Gemini init error")
		}
		// the model owns the client; closing it also closes the file store
		model, store = llm.NewGeminiAPI(client, cfg.GeminiModel), storage.NewGeminiFiles(client)
	}
	defer model.Close()

	analysisOpts := []services.AnalysisOption{services.WithAnalysisLogger(l)}
	if cfg.SearchEnabled {
		analysisOpts = append(analysisOpts, services.WithSearch(search.NewDuckDuckGo()))
	}
	if cfg.YouTubeAPIKey != "" {
		yt, err := youtube.NewClient(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			l.WithError(err).Warn("YouTube metadata disabled")
		} else {
			analysisOpts = append(analysisOpts, services.WithVideoLookup(yt))
		}
	}
	analysis := services.NewAnalysisService(
		sessions,
		store,
		model,
		polling.New(cfg.Poll, polling.WithLogger(l)),
		prompt.NewBuilder(prompt.DefaultConfig()),
		services.AnalysisConfig{
			TempDir:         cfg.TempDir,
			MaxUploadBytes:  cfg.MaxUploadBytes,
			MaxVideoSeconds: cfg.MaxVideoSeconds,
			Probe:           cfg.VideoProbe,
		},
		analysisOpts...,
	)

	speaker := newSpeaker(ctx, cfg, l)
	if speaker != nil {
		defer speaker.Close()
	}
	audio := services.NewAudioService(sessions, speaker, appCache, services.AudioConfig{
		DefaultVoiceID: defaultVoice(cfg),
	}, l)

	listener := newListener(ctx, cfg, l)
	if listener != nil {
		defer listener.Close()
	}
	query := services.NewQueryService(listener)

	janitor := &workers.TempJanitor{Dir: cfg.TempDir, MaxAge: cfg.JanitorMaxAge, Logger: l}
	if memCache != nil {
		janitor.OnTick = func() { memCache.Sweep() }
	}
	janitor.Start(ctx)

	analysisH := handlers.NewAnalysisHandler(sessions, analysis, cfg.MaxUploadBytes)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.RegisterRoutes(r, routes.Deps{
		Logger:   l,
		Tokens:   middleware.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL, cfg.SessionCookieSecure),
		Sessions: sessions,
		Health:   handlers.NewHealthHandler(checks),
		Page:     handlers.NewPageHandler(sessions, analysis, audio, analysisH, prompt.DefaultConfig(), cfg.SearchEnabled, l),
		Session:  handlers.NewSessionHandler(sessions),
		Analysis: analysisH,
		Audio:    handlers.NewAudioHandler(sessions, audio),
		Query:    handlers.NewQueryHandler(query),
		WS:       handlers.NewWSHandler(analysis, l),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		l.WithFields(logrus.Fields{
			"port":      cfg.Port,
			"inference": cfg.InferenceBackend,
			"sessions":  cfg.SessionStore,
			"tts":       cfg.TTSProvider,
		}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("graceful shutdown failed")
	}
}

// newSpeaker returns nil when audio is off or the provider cannot start.
func newSpeaker(ctx context.Context, cfg config.App, l *logrus.Logger) tts.Provider {
	switch cfg.TTSProvider {
	case "elevenlabs":
		return tts.NewElevenLabs(cfg.ElevenLabsAPIKey)
	case "google":
		g, err := tts.NewGoogleTTS(ctx, cfg.TTSVoiceLanguage)
		if err != nil {
			l.WithError(err).Warn("Google TTS disabled")
			return nil
		}
		return g
	default:
		return nil
	}
}

func defaultVoice(cfg config.App) string {
	if cfg.TTSDefaultVoiceID != "" {
		return cfg.TTSDefaultVoiceID
	}
	if cfg.TTSProvider == "google" {
		return tts.GoogleDefaultVoiceID
	}
	return tts.ElevenLabsDefaultVoiceID
}

func newListener(ctx context.Context, cfg config.App, l *logrus.Logger) stt.Provider {
	if !cfg.SpeechEnabled {
		return nil
	}
	g, err := stt.NewGoogleSpeech(ctx)
	if err != nil {
		l.WithError(err).Warn("spoken questions disabled")
		return nil
	}
	return g
}
