package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/yoockh/sagecreek/internal/polling"
)

// App holds every setting the server reads from the environment.
type App struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	GoogleAPIKey     string
	InferenceBackend string // gemini|vertex
	GeminiModel      string
	VertexProjectID  string
	VertexLocation   string
	GCSBucket        string

	TTSProvider       string // elevenlabs|google|none
	ElevenLabsAPIKey  string
	TTSDefaultVoiceID string
	TTSVoiceLanguage  string

	SessionStore        string // memory|redis|mongo
	SessionTTL          time.Duration
	SessionSecret       string
	SessionCookieSecure bool
	RedisAddr           string
	MongoURI            string
	MongoDB             string

	TempDir         string
	MaxUploadBytes  int64
	MaxVideoSeconds float64
	VideoProbe      bool
	Poll            polling.Config

	SearchEnabled bool
	YouTubeAPIKey string
	SpeechEnabled bool

	JanitorMaxAge time.Duration
}

// Load reads SECRETS_FILE (if set) and .env, then the process environment.
// Values already present in the environment win over both files.
func Load() (App, error) {
	if path := os.Getenv("SECRETS_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return App{}, fmt.Errorf("load SECRETS_FILE %s: %w", path, err)
		}
	}
	_ = godotenv.Load()

	c := App{
		Port:      getEnvOrDefault("PORT", "8080"),
		GinMode:   os.Getenv("GIN_MODE"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		InferenceBackend: strings.ToLower(getEnvOrDefault("INFERENCE_BACKEND", "gemini")),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		VertexProjectID:  os.Getenv("VERTEX_PROJECT_ID"),
		VertexLocation:   getEnvOrDefault("VERTEX_LOCATION", "us-central1"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),

		TTSProvider:       strings.ToLower(os.Getenv("TTS_PROVIDER")),
		ElevenLabsAPIKey:  os.Getenv("ELEVENLABS_API_KEY"),
		TTSDefaultVoiceID: os.Getenv("TTS_DEFAULT_VOICE_ID"),
		TTSVoiceLanguage:  getEnvOrDefault("TTS_VOICE_LANGUAGE", "en-US"),

		SessionStore:  strings.ToLower(getEnvOrDefault("SESSION_STORE", "memory")),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		RedisAddr:     firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getEnvOrDefault("MONGO_DB", "sagecreek"),

		TempDir:       getEnvOrDefault("TEMP_DIR", os.TempDir()),
		YouTubeAPIKey: os.Getenv("YOUTUBE_API_KEY"),
	}

	var errs []error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"SESSION_TTL", 24 * time.Hour, &c.SessionTTL},
		{"POLL_INITIAL_INTERVAL", 2 * time.Second, &c.Poll.InitialInterval},
		{"POLL_MAX_INTERVAL", 15 * time.Second, &c.Poll.MaxInterval},
		{"POLL_WARN_AFTER", 60 * time.Second, &c.Poll.WarnAfter},
		{"POLL_DEADLINE", 10 * time.Minute, &c.Poll.Deadline},
		{"JANITOR_MAX_AGE", time.Hour, &c.JanitorMaxAge},
	}
	for _, d := range durations {
		v, err := envDuration(d.key, d.def)
		errs = append(errs, err)
		*d.dst = v
	}

	maxMB, err := envInt("MAX_UPLOAD_MB", 200)
	errs = append(errs, err)
	c.MaxUploadBytes = int64(maxMB) << 20

	maxSec, err := envInt("MAX_VIDEO_SECONDS", 0)
	errs = append(errs, err)
	c.MaxVideoSeconds = float64(maxSec)

	bools := []struct {
		key string
		def bool
		dst *bool
	}{
		{"VIDEO_PROBE", true, &c.VideoProbe},
		{"SEARCH_ENABLED", true, &c.SearchEnabled},
		{"SPEECH_ENABLED", false, &c.SpeechEnabled},
		{"SESSION_COOKIE_SECURE", false, &c.SessionCookieSecure},
	}
	for _, b := range bools {
		v, err := envBool(b.key, b.def)
		errs = append(errs, err)
		*b.dst = v
	}

	if err := errors.Join(errs...); err != nil {
		return App{}, err
	}
	c.applyDefaults()
	return c, c.Validate()
}

func (c *App) applyDefaults() {
	if c.YouTubeAPIKey == "" {
		c.YouTubeAPIKey = c.GoogleAPIKey
	}
	if c.TTSProvider == "" {
		if c.ElevenLabsAPIKey != "" {
			c.TTSProvider = "elevenlabs"
		} else {
			c.TTSProvider = "none"
		}
	}
}

// Validate reports configuration that makes the server unusable. A missing
// generative-AI key is always fatal.
func (c App) Validate() error {
	var errs []error
	if c.GoogleAPIKey == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY is not set"))
	}
	switch c.InferenceBackend {
	case "gemini":
	case "vertex":
		if c.VertexProjectID == "" || c.GCSBucket == "" {
			errs = append(errs, errors.New("INFERENCE_BACKEND=vertex requires VERTEX_PROJECT_ID and GCS_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("INFERENCE_BACKEND must be gemini or vertex, got %q", c.InferenceBackend))
	}
	switch c.TTSProvider {
	case "none", "google":
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("TTS_PROVIDER=elevenlabs requires ELEVENLABS_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("TTS_PROVIDER must be elevenlabs, google or none, got %q", c.TTSProvider))
	}
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("SESSION_STORE=redis requires REDIS_ADDR (or REDIS_URI/REDIS_URL)"))
		}
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("SESSION_STORE=mongo requires MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be memory, redis or mongo, got %q", c.SessionStore))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	return errors.Join(errs...)
}

// EnsureSessionSecret returns the configured secret or a random one. A random
// secret invalidates existing session cookies on restart.
func (c *App) EnsureSessionSecret() (generated bool, err error) {
	if c.SessionSecret != "" {
		return false, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return false, err
	}
	c.SessionSecret = hex.EncodeToString(b)
	return true, nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
