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

	"github.com/hubenschmidt/ultrarelay/core"
)

const (
	anthropicBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// AnthropicClient streams chat completions from the Anthropic Messages API.
// Anthropic has no embeddings endpoint.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	version string
}

func NewAnthropicClientWithConfig(cfg ClientConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
		version: anthropicVersion,
	}
}

func (c *AnthropicClient) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	reqBody := map[string]any{
		"model":       req.Model,
		"max_tokens":  anthropicMaxTokens,
		"messages":    c.buildMessages(req.Messages),
		"temperature": req.Temperature,
		"stream":      true,
	}
	if req.System != "" {
		reqBody["system"] = req.System
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, core.NewUpstreamError("chat completion", fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewUpstreamError("chat completion", fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.version)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, core.NewUpstreamError("chat completion", fmt.Errorf("request failed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, core.NewUpstreamError("chat completion",
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	return &anthropicStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// buildMessages drops system turns; the system prompt travels in its own
// field.
func (c *AnthropicClient) buildMessages(msgs []Message) []Message {
	messages := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != string(core.RoleSystem) {
			messages = append(messages, m)
		}
	}
	return messages
}

// anthropicStream decodes the text deltas of a Messages event stream.
type anthropicStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
	once   sync.Once
}

func (s *anthropicStream) Next() (string, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				return "", core.NewUpstreamError("read chat stream", err)
			}
		}

		text, end, perr := parseAnthropicLine(line)
		if perr != nil {
			s.done = true
			return "", core.NewUpstreamError("chat stream", perr)
		}
		if end {
			s.done = true
			break
		}
		if text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}

// parseAnthropicLine reads one "data:" line. The event type is repeated in
// the payload, so "event:" lines are skipped.
func parseAnthropicLine(line string) (text string, end bool, err error) {
	data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
	if !ok {
		return "", false, nil
	}

	var ev anthropicEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
		return "", false, nil
	}

	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" {
			return ev.Delta.Text, false, nil
		}
	case "message_stop":
		return "", true, nil
	case "error":
		if ev.Error != nil {
			return "", false, errors.New(ev.Error.Message)
		}
		return "", false, errors.New("unknown stream error")
	}
	return "", false, nil
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
