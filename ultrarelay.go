// Package ultrarelay is a streaming chat relay with retrieval augmentation.
//
// The relay forwards a conversation to an upstream chat model, streams the
// answer back as one framed unit per chunk and can enrich the system prompt
// with the stored document fragments most similar to the user's question.
//
// Example usage:
//
//	cfg, _ := config.Load("")
//	app, err := ultrarelay.NewApp(ctx, cfg, zap.NewNop())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//	err = app.Run(ctx)
package ultrarelay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/client"
	"github.com/hubenschmidt/ultrarelay/config"
	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/llm"
	"github.com/hubenschmidt/ultrarelay/monitor"
	"github.com/hubenschmidt/ultrarelay/rag"
	"github.com/hubenschmidt/ultrarelay/relay"
	"github.com/hubenschmidt/ultrarelay/server"
	"github.com/hubenschmidt/ultrarelay/static"
	"github.com/hubenschmidt/ultrarelay/store"
	"github.com/hubenschmidt/ultrarelay/vector"
	"github.com/hubenschmidt/ultrarelay/watch"
)

// Core type aliases
type (
	Turn        = core.Turn
	MessageRole = core.MessageRole
	Error       = core.Error
)

// Store aliases
type (
	Fragment       = vector.Fragment
	ScoredFragment = vector.ScoredFragment
	Store          = vector.Store
)

// LLM client aliases
type (
	UnifiedClient = llm.UnifiedClient
	UnifiedConfig = llm.UnifiedConfig
	Stream        = llm.Stream
)

// Monitor aliases
type (
	MetricsCollector  = monitor.MetricsCollector
	InMemoryCollector = monitor.InMemoryCollector
	RelaySummary      = monitor.Summary
)

// Client aliases
type (
	Client       = client.Client
	ClientConfig = client.Config
)

// NewClient creates a conversation client for a running relay.
func NewClient(cfg ClientConfig) *Client {
	return client.New(cfg)
}

const shutdownTimeout = 10 * time.Second

// App is a fully wired relay service.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *vector.Store
	index   *rag.Index
	metrics *monitor.InMemoryCollector
	server  *server.Server
	watcher *watch.DirWatcher
}

// NewApp opens the fragment store and wires the providers, relay and HTTP
// server described by cfg. A store that cannot be read starts empty.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	persister, err := store.NewPersister(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fragments, err := vector.Open(ctx, persister)
	if err != nil {
		logger.Warn("stored fragments could not be loaded, starting empty",
			zap.String("backend", store.Kind(persister)),
			zap.Error(err))
	}
	logger.Info("fragment store ready",
		zap.String("backend", store.Kind(persister)),
		zap.Int("fragments", fragments.Len()))

	providers, err := llm.NewUnifiedClient(ctx, cfg.UnifiedConfig())
	if err != nil {
		fragments.Close()
		return nil, fmt.Errorf("create providers: %w", err)
	}
	logger.Info("providers configured",
		zap.Strings("providers", configuredProviders(providers)),
		zap.String("chat_model", cfg.Chat.Model),
		zap.String("embedding_model", cfg.Embedding.Model))
	if providers.HasOllama() {
		discoverOllama(ctx, cfg.Ollama.URL, logger)
	}

	index := rag.NewIndex(fragments, providers, rag.IndexConfig{
		EmbeddingModel: cfg.Embedding.Model,
		ChunkSize:      cfg.RAG.ChunkSize,
		Logger:         logger.Named("rag"),
	})

	metrics := monitor.NewInMemoryCollector(monitor.DefaultRecent)
	rl := relay.New(providers, rag.NewAugmenter(index, cfg.RAG.TopK), relay.Config{
		Model:        cfg.Chat.Model,
		Temperature:  cfg.Chat.Temperature,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Timeout:      cfg.Chat.Timeout,
		Logger:       logger.Named("relay"),
		Metrics:      metrics,
	})

	app := &App{
		cfg:     cfg,
		logger:  logger,
		store:   fragments,
		index:   index,
		metrics: metrics,
		server: server.New(server.Config{
			Index:        index,
			Relay:        rl,
			Metrics:      metrics,
			Logger:       logger.Named("http"),
			Static:       static.Dir(cfg.Server.PublicDir),
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			DefaultTopK:  cfg.Search.DefaultTopK,
		}),
	}

	if cfg.Watch.Dir != "" {
		app.watcher = watch.New(cfg.Watch.Dir, index, watch.Config{
			Concurrency: cfg.Watch.Concurrency,
			Logger:      logger.Named("watch"),
		})
	}
	return app, nil
}

func configuredProviders(u *llm.UnifiedClient) []string {
	var names []string
	if u.HasOpenAI() {
		names = append(names, llm.ProviderOpenAI)
	}
	if u.HasOllama() {
		names = append(names, llm.ProviderOllama)
	}
	if u.HasGemini() {
		names = append(names, llm.ProviderGemini)
	}
	if u.HasAnthropic() {
		names = append(names, llm.ProviderAnthropic)
	}
	return names
}

func discoverOllama(ctx context.Context, url string, logger *zap.Logger) {
	models, err := llm.DiscoverOllamaModels(ctx, url)
	if err != nil {
		logger.Warn("ollama discovery failed (is Ollama running?)", zap.Error(err))
		return
	}
	logger.Info("ollama models available", zap.Strings("models", models))
}

// Handler returns the HTTP handler of the service.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Index returns the fragment index.
func (a *App) Index() *rag.Index {
	return a.index
}

// Metrics returns the relay metrics summary.
func (a *App) Metrics() RelaySummary {
	return a.metrics.Summary()
}

// Run serves HTTP on the configured port, and follows the watch directory
// when one is configured, until ctx is done. In-flight requests get a grace
// period to finish.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("ultrarelay listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Streams still open after the grace period are cut off.
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the fragment store.
func (a *App) Close() error {
	return a.store.Close()
}
