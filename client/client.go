// Package client is the conversation client for the relay: it sends the
// recent turns, renders the streamed answer as it arrives and keeps the
// transcript.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/frame"
	"github.com/hubenschmidt/ultrarelay/vector"
)

const (
	DefaultWindow = 12

	StreamErrorMessage = "error during streaming"
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Transcript *Transcript
	// Window is how many of the most recent turns are sent per request.
	Window int
	Logger *zap.Logger
}

type Client struct {
	baseURL    string
	http       *http.Client
	transcript *Transcript
	window     int
	logger     *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Transcript == nil {
		cfg.Transcript = NewTranscript(DefaultMaxEntries)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		http:       cfg.HTTPClient,
		transcript: cfg.Transcript,
		window:     cfg.Window,
		logger:     cfg.Logger,
	}
}

func (c *Client) Transcript() *Transcript {
	return c.transcript
}

type chatRequest struct {
	Conversation []core.Turn `json:"conversation"`
	UseRAG       bool        `json:"use_rag"`
	RAGQuery     string      `json:"rag_query"`
}

// Chat appends text as a user turn, sends the recent conversation and
// renders the answer through r. It returns the entry that ended the
// exchange: the assistant answer, or an error entry when the request failed
// or the stream broke. A cancelled ctx discards the partial answer and
// records nothing.
func (c *Client) Chat(ctx context.Context, text string, useRAG bool, r Renderer) (Entry, error) {
	c.transcript.Append(Entry{Role: core.RoleUser, Content: text})
	defer c.save()

	body := chatRequest{
		Conversation: core.Tail(c.transcript.Turns(), c.window),
		UseRAG:       useRAG,
		RAGQuery:     text,
	}

	resp, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		return c.recordError("Error: " + err.Error()), err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := responseError(resp)
		return c.recordError("Error: " + err.Error()), err
	}

	return c.render(ctx, frame.NewReader(resp.Body), r)
}

func (c *Client) render(ctx context.Context, reader *frame.Reader, r Renderer) (Entry, error) {
	p := newPlaceholder(r)

	for {
		ev, err := reader.Next()
		switch {
		case err == nil:
		case ctx.Err() != nil:
			p.discard("cancelled")
			return Entry{}, ctx.Err()
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return c.commit(p), nil
		default:
			p.discard(StreamErrorMessage)
			return c.recordError(StreamErrorMessage), core.NewUpstreamError("read chat stream", err)
		}

		switch ev.Name {
		case frame.EventData:
			p.append(ev.Data)
		case frame.EventDone:
			return c.commit(p), nil
		case frame.EventError:
			p.discard(StreamErrorMessage)
			c.logger.Warn("relay reported stream failure", zap.String("error", ev.Data))
			return c.recordError(StreamErrorMessage), core.NewUpstreamError("chat stream", errors.New(ev.Data))
		}
	}
}

func (c *Client) commit(p *placeholder) Entry {
	return c.transcript.Append(Entry{Role: core.RoleAssistant, Content: p.commit()})
}

func (c *Client) recordError(msg string) Entry {
	return c.transcript.Append(Entry{Role: core.RoleAssistant, Content: msg, Error: true})
}

func (c *Client) save() {
	if err := c.transcript.Save(); err != nil {
		c.logger.Warn("failed to save transcript", zap.Error(err))
	}
}

// Upload sends a document to the relay's fragment store and returns the
// number of chunks added.
func (c *Client) Upload(ctx context.Context, filename, text string) (int, error) {
	var out struct {
		Added int `json:"added"`
	}
	if err := c.call(ctx, "/api/upload", map[string]string{"filename": filename, "text": text}, &out); err != nil {
		return 0, err
	}
	return out.Added, nil
}

// Search runs a raw similarity query against the relay's fragment store.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]vector.ScoredFragment, error) {
	var out struct {
		Results []vector.ScoredFragment `json:"results"`
	}
	if err := c.call(ctx, "/api/vector_search", map[string]any{"query": query, "topK": topK}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) call(ctx context.Context, path string, in, out any) error {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// responseError builds an error from a non-200 relay response, preferring
// the {error} message of a JSON body.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	err := fmt.Errorf("relay error (status %d): %s", resp.StatusCode, msg)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &core.Error{Op: "relay request", Kind: core.ErrValidation, Err: err}
	}
	return core.NewUpstreamError("relay request", err)
}
