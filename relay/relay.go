// Package relay forwards a conversation to an upstream chat provider and
// re-frames its streamed output for the client.
//
// A request moves through these states:
//
//	Idle -> Augmenting (use_rag) -> CallingUpstream -> Streaming -> Done
//	                                                            \-> Aborted
//	Augmenting | CallingUpstream -> Failed (no bytes written yet)
//	Streaming -> Failed (in-band error unit)
//
// Open covers everything up to a connected upstream stream, so any error it
// returns can still be reported as a plain response. Pump runs the streaming
// phase after the caller has committed the event-stream headers.
package relay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/llm"
	"github.com/hubenschmidt/ultrarelay/monitor"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
	DefaultTimeout     = 120 * time.Second
)

// Request is the client's chat request.
type Request struct {
	Conversation []core.Turn
	UseRAG       bool
	RAGQuery     string
	RequestID    string
}

// Augmenter enriches the system prompt. It returns the prompt and the
// number of documents added.
type Augmenter interface {
	SystemPrompt(ctx context.Context, base string, useRAG bool, query string) (string, int, error)
}

type Config struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	Timeout      time.Duration
	Logger       *zap.Logger
	Metrics      monitor.MetricsCollector
}

type Relay struct {
	upstream  llm.ChatStreamer
	augmenter Augmenter
	cfg       Config
}

func New(upstream llm.ChatStreamer, augmenter Augmenter, cfg Config) *Relay {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = monitor.NewNoOpCollector()
	}
	return &Relay{upstream: upstream, augmenter: augmenter, cfg: cfg}
}

// Open augments the system prompt when asked to and connects to the
// upstream provider. The returned Session owns the upstream stream and must
// be pumped or closed.
func (r *Relay) Open(ctx context.Context, req Request) (*Session, error) {
	s := &Session{
		relay:   r,
		start:   time.Now(),
		state:   StateIdle,
		logger:  r.cfg.Logger.With(zap.String("request_id", req.RequestID)),
		metrics: monitor.RelayMetrics{RequestID: req.RequestID, Model: r.cfg.Model, UsedRAG: req.UseRAG},
	}

	system := r.cfg.SystemPrompt
	if req.UseRAG && r.augmenter != nil {
		s.transition(StateAugmenting)
		prompt, docs, err := r.augmenter.SystemPrompt(ctx, system, true, req.RAGQuery)
		if err != nil {
			return nil, s.fail(err)
		}
		system = prompt
		s.metrics.Docs = docs
	}

	s.transition(StateCallingUpstream)

	// The deadline covers the connect and every chunk read that follows.
	upstreamCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	stream, err := r.upstream.ChatStream(upstreamCtx, llm.ChatRequest{
		Model:       r.cfg.Model,
		System:      system,
		Messages:    toMessages(req.Conversation),
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		cancel()
		if errors.Is(upstreamCtx.Err(), context.DeadlineExceeded) {
			err = core.NewUpstreamError("chat completion", upstreamCtx.Err())
		}
		return nil, s.fail(err)
	}

	s.stream = stream
	s.upstreamCtx = upstreamCtx
	s.cancel = cancel
	return s, nil
}

func toMessages(turns []core.Turn) []llm.Message {
	msgs := make([]llm.Message, len(turns))
	for i, t := range turns {
		msgs[i] = llm.Message{Role: string(t.Role), Content: t.Content}
	}
	return msgs
}
