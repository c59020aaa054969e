package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/ultrarelay/core"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to the OpenAI API, or to any server exposing the same
// chat completions and embeddings endpoints.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func NewOpenAIClientWithConfig(cfg ClientConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (c *OpenAIClient) buildMessages(system string, msgs []Message) []Message {
	messages := make([]Message, 0, len(msgs)+1)
	messages = append(messages, Message{Role: string(core.RoleSystem), Content: system})
	return append(messages, msgs...)
}

// ChatStream posts a chat completion with stream=true and returns the
// decoded content deltas.
func (c *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	reqBody := map[string]any{
		"model":       req.Model,
		"messages":    c.buildMessages(req.System, req.Messages),
		"temperature": req.Temperature,
		"stream":      true,
	}

	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, core.NewUpstreamError("chat completion", err)
	}

	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// Embed returns the embedding of input.
func (c *OpenAIClient) Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, "/embeddings", map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, core.NewUpstreamError("embedding", err)
	}
	defer resp.Body.Close()

	var result openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.NewUpstreamError("embedding", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Data) == 0 {
		return nil, core.NewUpstreamError("embedding", errors.New("no embeddings in response"))
	}

	return &EmbeddingResponse{
		Embedding:  result.Data[0].Embedding,
		TokenCount: result.Usage.PromptTokens,
	}, nil
}

// post sends a JSON request and returns the response when its status is 200.
func (c *OpenAIClient) post(ctx context.Context, path string, reqBody any) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}

// sseStream decodes "data: {...}" lines of a chat completion stream.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
	once   sync.Once
}

func (s *sseStream) Next() (string, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				return "", core.NewUpstreamError("read chat stream", err)
			}
		}

		content, end, perr := parseStreamLine(line)
		if perr != nil {
			s.done = true
			return "", core.NewUpstreamError("chat stream", perr)
		}
		if end {
			s.done = true
			break
		}
		if content != "" {
			return content, nil
		}
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// parseStreamLine extracts the content delta of one stream line. end is set
// on the [DONE] sentinel.
func parseStreamLine(line string) (content string, end bool, err error) {
	line = strings.TrimSpace(line)
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false, nil
	}
	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return "", true, nil
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, nil
	}
	if chunk.Error != nil {
		return "", false, errors.New(chunk.Error.Message)
	}
	if len(chunk.Choices) > 0 {
		return chunk.Choices[0].Delta.Content, false, nil
	}
	return "", false, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}
