package llm

import "context"

// ChatStreamer opens a streaming chat completion. A non-success response
// from the provider is reported as an error here, before any chunk is read.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// EmbeddingClient turns text into a fixed-length vector.
type EmbeddingClient interface {
	Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error)
}

type ClientConfig struct {
	APIKey  string
	BaseURL string
	// Timeout bounds non-streaming calls, in seconds. Streaming calls are
	// bounded by the caller's context only.
	Timeout int
}
