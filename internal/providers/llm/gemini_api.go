package llm

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
)

const DefaultGeminiModel = "gemini-2.0-flash-exp"

// GeminiAPI calls Gemini through the public API with an API key. It shares its
// client with storage.GeminiFiles so uploaded file URIs resolve.
type GeminiAPI struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewGeminiAPI(client *genai.Client, modelName string) *GeminiAPI {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	return &GeminiAPI{client: client, modelName: modelName, temperature: 0.4}
}

func (g *GeminiAPI) Name() string { return g.modelName }

func (g *GeminiAPI) Close() error { return g.client.Close() }

// model is built per request; GenerativeModel carries the system instruction as mutable state.
func (g *GeminiAPI) model(req Request) *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(g.temperature)
	if req.SystemInstruction != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemInstruction))
	}
	return m
}

func geminiParts(req Request) []genai.Part {
	return []genai.Part{
		genai.FileData{MIMEType: videoMIME(req), URI: videoURI(req)},
		genai.Text(req.Prompt),
	}
}

func (g *GeminiAPI) Generate(ctx context.Context, req Request) (string, error) {
	const op = "GeminiAPI.Generate"
	if err := validate(op, req); err != nil {
		return "", err
	}

	resp, err := g.model(req).GenerateContent(ctx, geminiParts(req)...)
	if err != nil {
		return "", wrapCallErr(op, err)
	}
	text := geminiText(resp)
	if text == "" {
		return "", emptyAnswer(op)
	}
	return text, nil
}

func (g *GeminiAPI) StreamAnswer(ctx context.Context, req Request) (<-chan string, <-chan error) {
	const op = "GeminiAPI.StreamAnswer"
	out := make(chan string, 32)
	errs := make(chan error, 1)

	if err := validate(op, req); err != nil {
		close(out)
		errs <- err
		close(errs)
		return out, errs
	}

	go func() {
		defer close(out)
		defer close(errs)

		sent := false
		it := g.model(req).GenerateContentStream(ctx, geminiParts(req)...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				if !sent {
					errs <- emptyAnswer(op)
				}
				return
			}
			if err != nil {
				errs <- wrapCallErr(op, err)
				return
			}

			if t := geminiText(resp); t != "" {
				select {
				case out <- t:
					sent = true
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errs
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var s string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				s += string(t)
			}
		}
	}
	return s
}
