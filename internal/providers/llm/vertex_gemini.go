package llm

import (
	"context"
	"errors"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

// VertexGemini calls Gemini on Vertex AI. Videos must be gs:// URIs or public links.
type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Name() string { return v.modelName }

func (v *VertexGemini) Close() error { return v.client.Close() }

func (v *VertexGemini) model(req Request) *vertexgenai.GenerativeModel {
	m := v.client.GenerativeModel(v.modelName)
	m.SetTemperature(0.4)
	if req.SystemInstruction != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.SystemInstruction)}}
	}
	return m
}

func vertexParts(req Request) []vertexgenai.Part {
	return []vertexgenai.Part{
		vertexgenai.FileData{MIMEType: videoMIME(req), FileURI: videoURI(req)},
		vertexgenai.Text(req.Prompt),
	}
}

func (v *VertexGemini) Generate(ctx context.Context, req Request) (string, error) {
	const op = "VertexGemini.Generate"
	if err := validate(op, req); err != nil {
		return "", err
	}

	resp, err := v.model(req).GenerateContent(ctx, vertexParts(req)...)
	if err != nil {
		return "", wrapCallErr(op, err)
	}
	text := vertexText(resp)
	if text == "" {
		return "", emptyAnswer(op)
	}
	return text, nil
}

func (v *VertexGemini) StreamAnswer(ctx context.Context, req Request) (<-chan string, <-chan error) {
	const op = "VertexGemini.StreamAnswer"
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
		it := v.model(req).GenerateContentStream(ctx, vertexParts(req)...)
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

			if t := vertexText(resp); t != "" {
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

func vertexText(resp *vertexgenai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var s string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(vertexgenai.Text); ok {
				s += string(t)
			}
		}
	}
	return s
}
