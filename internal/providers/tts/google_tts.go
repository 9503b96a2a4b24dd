package tts

import (
	"context"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/yoockh/sagecreek/internal/models"
	"github.com/yoockh/sagecreek/internal/utils"
)

const GoogleDefaultVoiceID = "en-US-Neural2-D"

type GoogleTTS struct {
	c        *texttospeech.Client
	language string
}

func NewGoogleTTS(ctx context.Context, language string) (*GoogleTTS, error) {
	c, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "en-US"
	}
	return &GoogleTTS{c: c, language: language}, nil
}

func (g *GoogleTTS) Name() string { return "google" }

func (g *GoogleTTS) Close() error { return g.c.Close() }

func (g *GoogleTTS) ListVoices(ctx context.Context) ([]models.Voice, error) {
	resp, err := g.c.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: g.language})
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, "GoogleTTS.ListVoices", "text-to-speech is unavailable", err)
	}
	out := make([]models.Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		out = append(out, googleVoice(v))
	}
	return out, nil
}

func googleVoice(v *texttospeechpb.Voice) models.Voice {
	lang := ""
	if codes := v.GetLanguageCodes(); len(codes) > 0 {
		lang = codes[0]
	}
	return models.Voice{
		ID:       v.GetName(),
		Name:     v.GetName(),
		Category: voiceFamily(v.GetName()),
		Language: lang,
		Labels:   map[string]string{"gender": strings.ToLower(v.GetSsmlGender().String())},
	}
}

// voiceFamily extracts "Neural2" from "en-US-Neural2-D".
func voiceFamily(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) >= 4 {
		return strings.Join(parts[2:len(parts)-1], "-")
	}
	return ""
}

func (g *GoogleTTS) Synthesize(ctx context.Context, voiceID, text string) ([]byte, string, error) {
	const op = "GoogleTTS.Synthesize"
	if strings.TrimSpace(text) == "" {
		return nil, "", utils.E(utils.CodeInvalidArgument, op, "text is required", nil)
	}
	if voiceID == "" {
		voiceID = GoogleDefaultVoiceID
	}

	lang := g.language
	if parts := strings.SplitN(voiceID, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}

	resp, err := g.c.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, "", utils.E(utils.CodeUnavailable, op, "text-to-speech is unavailable", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, "", utils.E(utils.CodeUpstreamFailed, op, "text-to-speech returned no audio", nil)
	}
	return resp.GetAudioContent(), "audio/mpeg", nil
}
