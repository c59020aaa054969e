// Package config loads service and client settings from defaults, an
// optional config file, a local .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hubenschmidt/ultrarelay/llm"
)

const DefaultSystemPrompt = "You are ULTRA AI — concise, helpful assistant. Answer in Hindi or the language of the user. " +
	"Provide summary and direct answer. Do not hallucinate. If external docs are provided, cite them."

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	RAG       RAGConfig       `mapstructure:"rag"`
	Search    SearchConfig    `mapstructure:"search"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Client    ClientConfig    `mapstructure:"client"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port" validate:"min=1,max=65535"`
	PublicDir    string `mapstructure:"public_dir"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes" validate:"min=1"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type AnthropicConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type OllamaConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type ChatConfig struct {
	Model        string        `mapstructure:"model" validate:"required"`
	Temperature  float64       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
}

type EmbeddingConfig struct {
	Model string `mapstructure:"model" validate:"required"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

type RAGConfig struct {
	ChunkSize int `mapstructure:"chunk_size" validate:"min=1"`
	TopK      int `mapstructure:"top_k" validate:"min=1"`
}

type SearchConfig struct {
	DefaultTopK int `mapstructure:"default_top_k" validate:"min=1"`
}

type WatchConfig struct {
	Dir         string `mapstructure:"dir"`
	Concurrency int    `mapstructure:"concurrency" validate:"min=1"`
}

type ClientConfig struct {
	ServerURL   string `mapstructure:"server_url" validate:"required,url"`
	HistoryFile string `mapstructure:"history_file"`
	Window      int    `mapstructure:"window" validate:"min=1"`
	MaxHistory  int    `mapstructure:"max_history" validate:"min=1"`
	UseRAG      bool   `mapstructure:"use_rag"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.public_dir", "public")
	v.SetDefault("server.max_body_bytes", 2<<20)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("ollama.url", "")

	v.SetDefault("chat.model", "gpt-4o-mini")
	v.SetDefault("chat.temperature", 0.2)
	v.SetDefault("chat.timeout", "120s")
	v.SetDefault("chat.system_prompt", DefaultSystemPrompt)

	v.SetDefault("embedding.model", "text-embedding-3-small")

	v.SetDefault("store.dsn", "vector_store.json")

	v.SetDefault("rag.chunk_size", 800)
	v.SetDefault("rag.top_k", 3)
	v.SetDefault("search.default_top_k", 4)

	v.SetDefault("watch.dir", "")
	v.SetDefault("watch.concurrency", 4)

	v.SetDefault("client.server_url", "http://localhost:3000")
	v.SetDefault("client.history_file", ".ultra_chat_history.json")
	v.SetDefault("client.window", 12)
	v.SetDefault("client.max_history", 100)
	v.SetDefault("client.use_rag", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. configPath may be empty, in which case a
// config.yaml in the working directory is used when present. Values from
// .env never override variables already set in the environment.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Short names kept for compatibility with existing deployments.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.public_dir", "SERVER_PUBLIC_DIR", "PUBLIC_DIR")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and that the providers selected by the chat
// and embedding models have credentials.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	for _, model := range []string{c.Chat.Model, c.Embedding.Model} {
		if err := c.requireCredential(model); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) requireCredential(model string) error {
	provider, _ := llm.ProviderFor(model)
	switch {
	case provider == llm.ProviderOpenAI && c.OpenAI.APIKey == "":
		return fmt.Errorf("OPENAI_API_KEY is required for model %q", model)
	case provider == llm.ProviderGemini && c.Gemini.APIKey == "":
		return fmt.Errorf("GEMINI_API_KEY is required for model %q", model)
	case provider == llm.ProviderAnthropic && c.Anthropic.APIKey == "":
		return fmt.Errorf("ANTHROPIC_API_KEY is required for model %q", model)
	case provider == llm.ProviderOllama && c.Ollama.URL == "":
		return fmt.Errorf("OLLAMA_URL is required for model %q", model)
	}
	return nil
}

// UnifiedConfig returns the provider settings for llm.NewUnifiedClient.
func (c *Config) UnifiedConfig() llm.UnifiedConfig {
	return llm.UnifiedConfig{
		OpenAIKey:        c.OpenAI.APIKey,
		OpenAIBaseURL:    c.OpenAI.BaseURL,
		GeminiKey:        c.Gemini.APIKey,
		AnthropicKey:     c.Anthropic.APIKey,
		AnthropicBaseURL: c.Anthropic.BaseURL,
		OllamaURL:        c.Ollama.URL,
	}
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
