package stt

import (
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

func TestFormatFor(t *testing.T) {
	tests := []struct {
		mime string
		enc  speechpb.RecognitionConfig_AudioEncoding
		rate int32
		ok   bool
	}{
		{"audio/wav", speechpb.RecognitionConfig_LINEAR16, 0, true},
		{"audio/webm;codecs=opus", speechpb.RecognitionConfig_WEBM_OPUS, 48000, true},
		{"AUDIO/OGG", speechpb.RecognitionConfig_OGG_OPUS, 48000, true},
		{"audio/flac", speechpb.RecognitionConfig_FLAC, 0, true},
		{"audio/mpeg", 0, 0, false},
	}
	for _, tt := range tests {
		f, ok := FormatFor(tt.mime)
		if ok != tt.ok {
			t.Fatalf("FormatFor(%q) ok = %v", tt.mime, ok)
		}
		if ok && (f.Encoding != tt.enc || f.SampleRateHz != tt.rate) {
			t.Fatalf("FormatFor(%q) = %+v", tt.mime, f)
		}
	}
}

func TestBestTranscript(t *testing.T) {
	resp := &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: "analyze my stands", Confidence: 0.4},
			{Transcript: " analyze my stance ", Confidence: 0.9},
		}},
	}}
	text, conf := bestTranscript(resp)
	if text != "analyze my stance" || conf < 0.89 {
		t.Fatalf("bestTranscript = %q, %v", text, conf)
	}
}
