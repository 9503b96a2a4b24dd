package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yoockh/sagecreek/internal/utils"
)

// MaxSyncAudioBytes bounds synchronous recognition (about one minute of audio).
const MaxSyncAudioBytes = 10 << 20

type GoogleSpeech struct {
	c *speech.Client
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

type AudioFormat struct {
	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32 // 0 lets the service read it from the header
}

// FormatFor maps an upload MIME type to a recognizer encoding.
func FormatFor(mimeType string) (AudioFormat, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return AudioFormat{Encoding: speechpb.RecognitionConfig_LINEAR16}, true
	case "audio/l16", "audio/pcm":
		return AudioFormat{Encoding: speechpb.RecognitionConfig_LINEAR16, SampleRateHz: 16000}, true
	case "audio/flac", "audio/x-flac":
		return AudioFormat{Encoding: speechpb.RecognitionConfig_FLAC}, true
	case "audio/ogg":
		return AudioFormat{Encoding: speechpb.RecognitionConfig_OGG_OPUS, SampleRateHz: 48000}, true
	case "audio/webm", "video/webm":
		return AudioFormat{Encoding: speechpb.RecognitionConfig_WEBM_OPUS, SampleRateHz: 48000}, true
	default:
		return AudioFormat{}, false
	}
}

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, float64, error) {
	const op = "GoogleSpeech.Transcribe"

	if len(audio) == 0 {
		return "", 0, utils.E(utils.CodeInvalidArgument, op, "audio is empty", nil)
	}
	if len(audio) > MaxSyncAudioBytes {
		return "", 0, utils.E(utils.CodeTooLarge, op, "spoken query is too long", nil)
	}
	format, ok := FormatFor(mimeType)
	if !ok {
		return "", 0, utils.E(utils.CodeUnsupportedMedia, op, "unsupported audio format", nil)
	}
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   format.Encoding,
			SampleRateHertz:            format.SampleRateHz,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
			// wrestling vocabulary the recognizer otherwise mangles
			SpeechContexts: []*speechpb.SpeechContext{{
				Phrases: []string{"single leg", "double leg", "sprawl", "half nelson", "cradle", "sit-out", "stand-up", "Kolat"},
			}},
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, utils.E(utils.CodeUnavailable, op, "speech recognition is unavailable", err)
	}

	text, conf := bestTranscript(resp)
	return text, conf, nil
}

func bestTranscript(resp *speechpb.RecognizeResponse) (string, float64) {
	var bestText string
	var bestConf float64
	for _, r := range resp.GetResults() {
		for _, alt := range r.GetAlternatives() {
			if alt.GetTranscript() != "" && float64(alt.GetConfidence()) >= bestConf {
				bestText = alt.GetTranscript()
				bestConf = float64(alt.GetConfidence())
			}
		}
	}
	return strings.TrimSpace(bestText), bestConf
}
