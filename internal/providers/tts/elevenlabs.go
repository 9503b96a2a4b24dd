package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

const (
	ElevenLabsDefaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	elevenLabsBaseURL        = "https://api.elevenlabs.io/v1"
	elevenLabsModel          = "eleven_multilingual_v2"

	defaultHTTPTimeout    = 60 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 8 * time.Second
)

type ElevenLabs struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

type Option func(*ElevenLabs)

func WithHTTPClient(client *http.Client) Option {
	return func(e *ElevenLabs) {
		if client != nil {
			e.httpClient = client
		}
	}
}

func WithBaseURL(base string) Option {
	return func(e *ElevenLabs) {
		if base = strings.TrimSpace(base); base != "" {
			e.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(e *ElevenLabs) {
		e.retryMaxAttempts = attempts
		e.retryBaseDelay = baseDelay
		e.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(e *ElevenLabs) { e.sleeper = sleeper }
}

func NewElevenLabs(apiKey string, opts ...Option) *ElevenLabs {
	e := &ElevenLabs{
		apiKey:           strings.TrimSpace(apiKey),
		baseURL:          elevenLabsBaseURL,
		model:            elevenLabsModel,
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Close() error { return nil }

type voicesResponse struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

func (e *ElevenLabs) ListVoices(ctx context.Context) ([]models.Voice, error) {
	const op = "ElevenLabs.ListVoices"
	if e.apiKey == "" {
		return nil, utils.E(utils.CodeFailedPrecondition, op, "text-to-speech is not configured", nil)
	}

	body, _, err := e.doWithRetry(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/voices", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed voicesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, utils.E(utils.CodeUpstreamFailed, op, "failed to decode voices", err)
	}
	out := make([]models.Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		out = append(out, models.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Category: v.Category,
			Language: v.Labels["language"],
			Labels:   v.Labels,
		})
	}
	return out, nil
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, voiceID, text string) ([]byte, string, error) {
	const op = "ElevenLabs.Synthesize"
	if e.apiKey == "" {
		return nil, "", utils.E(utils.CodeFailedPrecondition, op, "text-to-speech is not configured", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if voiceID == "" {
		voiceID = ElevenLabsDefaultVoiceID
	}

	encoded, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       e.model,
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, "", utils.E(utils.CodeInternal, op, "failed to encode request", err)
	}

	endpoint := e.baseURL + "/text-to-speech/" + url.PathEscape(voiceID)
	audio, contentType, err := e.doWithRetry(ctx, op, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		return req, nil
	})
	if err != nil {
		return nil, "", err
	}
	if len(audio) == 0 {
		return nil, "", utils.E(utils.CodeUpstreamFailed, op, "text-to-speech returned no audio", nil)
	}
	if contentType == "" || !strings.HasPrefix(contentType, "audio/") {
		contentType = "audio/mpeg"
	}
	return audio, contentType, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("elevenlabs: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *ElevenLabs) doWithRetry(ctx context.Context, op string, build func() (*http.Request, error)) ([]byte, string, error) {
	attempts := e.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, contentType, err := e.doOnce(build)
		if err == nil {
			return body, contentType, nil
		}
		lastErr = err

		delay, retry := e.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := e.sleep(ctx, delay); err != nil {
			return nil, "", err
		}
	}
	return nil, "", classify(op, lastErr)
}

func (e *ElevenLabs) doOnce(build func() (*http.Request, error)) ([]byte, string, error) {
	req, err := build()
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: retryAfter}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (e *ElevenLabs) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return e.capDelay(statusErr.RetryAfter), true
			}
			return e.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return e.backoffDelay(attempt), true
	}
	return 0, false
}

// attempt 1 -> base, attempt 2 -> base*2, ... capped at max
func (e *ElevenLabs) backoffDelay(attempt int) time.Duration {
	delay := e.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.retryMaxDelay {
			break
		}
	}
	return e.capDelay(delay)
}

func (e *ElevenLabs) capDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if e.retryMaxDelay > 0 && d > e.retryMaxDelay {
		return e.retryMaxDelay
	}
	return d
}

func (e *ElevenLabs) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if e.sleeper != nil {
		e.sleeper(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return utils.E(utils.CodeFailedPrecondition, op, "text-to-speech credentials were rejected", err)
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusNotFound:
			return utils.E(utils.CodeUpstreamFailed, op, "text-to-speech rejected the request", err)
		}
	}
	return utils.E(utils.CodeUnavailable, op, "text-to-speech is unavailable", err)
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}
