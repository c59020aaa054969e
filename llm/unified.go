package llm

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// UnifiedClient routes chat and embedding calls to a provider chosen from
// the model name.
type UnifiedClient struct {
	openai      *OpenAIClient
	ollama      *OpenAIClient
	ollamaEmbed *OllamaEmbedClient
	gemini      *GeminiClient
	anthropic   *AnthropicClient
}

type UnifiedConfig struct {
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	OllamaURL     string
	AnthropicKey  string
	// AnthropicBaseURL overrides the Messages API location; mainly for tests.
	AnthropicBaseURL string
}

func NewUnifiedClient(ctx context.Context, cfg UnifiedConfig) (*UnifiedClient, error) {
	u := &UnifiedClient{}

	if cfg.OpenAIKey != "" {
		u.openai = NewOpenAIClientWithConfig(ClientConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: 60,
		})
	}

	if cfg.OllamaURL != "" {
		u.ollama = NewOllamaChatClient(cfg.OllamaURL)
		u.ollamaEmbed = NewOllamaEmbedClient(cfg.OllamaURL)
	}

	if cfg.AnthropicKey != "" {
		u.anthropic = NewAnthropicClientWithConfig(ClientConfig{
			APIKey:  cfg.AnthropicKey,
			BaseURL: cfg.AnthropicBaseURL,
		})
	}

	if cfg.GeminiKey != "" {
		gemini, err := NewGeminiClient(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		u.gemini = gemini
	}

	return u, nil
}

// ProviderFor names the provider serving model:
//   - "ollama/<name>": Ollama, prefix stripped
//   - "gemini-..." or "gemini/<name>": Gemini, "gemini/" stripped
//   - "claude-..." or "anthropic/<name>": Anthropic, chat only
//   - anything else ("gpt-", "o1-", "text-embedding-", ...): OpenAI
func ProviderFor(model string) (provider, resolvedModel string) {
	switch {
	case strings.HasPrefix(model, "ollama/"):
		return ProviderOllama, strings.TrimPrefix(model, "ollama/")
	case strings.HasPrefix(model, "gemini/"):
		return ProviderGemini, strings.TrimPrefix(model, "gemini/")
	case strings.HasPrefix(model, "gemini-"):
		return ProviderGemini, model
	case strings.HasPrefix(model, "anthropic/"):
		return ProviderAnthropic, strings.TrimPrefix(model, "anthropic/")
	case strings.HasPrefix(model, "claude-"):
		return ProviderAnthropic, model
	default:
		return ProviderOpenAI, model
	}
}

func (u *UnifiedClient) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	provider, model := ProviderFor(req.Model)
	req.Model = model

	switch {
	case provider == ProviderOpenAI && u.openai != nil:
		return u.openai.ChatStream(ctx, req)
	case provider == ProviderOllama && u.ollama != nil:
		return u.ollama.ChatStream(ctx, req)
	case provider == ProviderGemini && u.gemini != nil:
		return u.gemini.ChatStream(ctx, req)
	case provider == ProviderAnthropic && u.anthropic != nil:
		return u.anthropic.ChatStream(ctx, req)
	}
	return nil, fmt.Errorf("no %s client configured for chat model %q", provider, model)
}

func (u *UnifiedClient) Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error) {
	provider, resolvedModel := ProviderFor(model)

	switch {
	case provider == ProviderOpenAI && u.openai != nil:
		return u.openai.Embed(ctx, resolvedModel, input)
	case provider == ProviderOllama && u.ollamaEmbed != nil:
		return u.ollamaEmbed.Embed(ctx, resolvedModel, input)
	case provider == ProviderGemini && u.gemini != nil:
		return u.gemini.Embed(ctx, resolvedModel, input)
	case provider == ProviderAnthropic:
		return nil, fmt.Errorf("%s does not provide embeddings (model %q)", provider, model)
	}
	return nil, fmt.Errorf("no %s client configured for embedding model %q", provider, model)
}

func (u *UnifiedClient) HasOpenAI() bool {
	return u.openai != nil
}

func (u *UnifiedClient) HasOllama() bool {
	return u.ollama != nil
}

func (u *UnifiedClient) HasGemini() bool {
	return u.gemini != nil
}

func (u *UnifiedClient) HasAnthropic() bool {
	return u.anthropic != nil
}
