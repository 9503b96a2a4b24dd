package stt

import "context"

type Provider interface {
	// Transcribe converts a short spoken query to text. mimeType selects the decoder.
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (text string, confidence float64, err error)
	Close() error
}
