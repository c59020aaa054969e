package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/ultrarelay/core"
)

type OllamaTagsResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

type OllamaModelInfo struct {
	Name string `json:"name"`
}

// ollamaHost strips a trailing slash and /v1 suffix from an Ollama URL.
func ollamaHost(url string) string {
	host := strings.TrimSuffix(url, "/")
	return strings.TrimSuffix(host, "/v1")
}

// DiscoverOllamaModels lists the models available on an Ollama instance.
func DiscoverOllamaModels(ctx context.Context, ollamaURL string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ollamaHost(ollamaURL)+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama discovery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var tags OllamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = "ollama/" + m.Name
	}
	return names, nil
}

// NewOllamaChatClient returns a chat client for Ollama's OpenAI-compatible API.
func NewOllamaChatClient(ollamaURL string) *OpenAIClient {
	return NewOpenAIClientWithConfig(ClientConfig{
		BaseURL: ollamaHost(ollamaURL) + "/v1",
		Timeout: 60,
	})
}

// OllamaEmbedClient handles Ollama-native embedding API.
type OllamaEmbedClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaEmbedClient creates a client for Ollama's native embedding API.
func NewOllamaEmbedClient(baseURL string) *OllamaEmbedClient {
	return &OllamaEmbedClient{
		baseURL: ollamaHost(baseURL),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Embed generates an embedding for a single input using Ollama's native API.
func (c *OllamaEmbedClient) Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error) {
	body, err := json.Marshal(map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.NewUpstreamError("ollama embedding", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewUpstreamError("ollama embedding",
			fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.NewUpstreamError("ollama embedding", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Embeddings) == 0 {
		return nil, core.NewUpstreamError("ollama embedding", errors.New("no embeddings in response"))
	}

	return &EmbeddingResponse{Embedding: result.Embeddings[0]}, nil
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}
