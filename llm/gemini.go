package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/hubenschmidt/ultrarelay/core"
)

// GeminiClient streams chat completions and embeddings from the Gemini API.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

func geminiContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == string(core.RoleAssistant) {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func (c *GeminiClient) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{Temperature: &temperature}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	responses := c.client.Models.GenerateContentStream(ctx, req.Model, geminiContents(req.Messages), config)

	texts := func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", core.NewUpstreamError("gemini chat stream", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}

	return primeStream(texts)
}

func (c *GeminiClient) Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error) {
	resp, err := c.client.Models.EmbedContent(ctx, model, genai.Text(input), nil)
	if err != nil {
		return nil, core.NewUpstreamError("gemini embedding", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, core.NewUpstreamError("gemini embedding", errors.New("no embeddings in response"))
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, v := range values {
		embedding[i] = float64(v)
	}
	return &EmbeddingResponse{Embedding: embedding}, nil
}
