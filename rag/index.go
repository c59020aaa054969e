// Package rag ingests documents into the fragment store and enriches system
// prompts with the fragments most similar to a query.
package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/llm"
	"github.com/hubenschmidt/ultrarelay/vector"
)

// Index chunks, embeds and stores documents, and answers similarity queries
// against the stored fragments.
type Index struct {
	store     *vector.Store
	embedder  llm.EmbeddingClient
	model     string
	chunkSize int
	logger    *zap.Logger

	newID func() string
	now   func() time.Time
}

type IndexConfig struct {
	EmbeddingModel string
	ChunkSize      int
	Logger         *zap.Logger
}

func NewIndex(store *vector.Store, embedder llm.EmbeddingClient, cfg IndexConfig) *Index {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Index{
		store:     store,
		embedder:  embedder,
		model:     cfg.EmbeddingModel,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
		newID:     func() string { return "vec_" + uuid.NewString() },
		now:       time.Now,
	}
}

func (x *Index) Store() *vector.Store {
	return x.store
}

// Ingest stores one fragment per chunk of text and persists the store once
// all chunks are embedded. Fragments appended before an embedding failure
// stay in memory and are written by the next successful ingest.
func (x *Index) Ingest(ctx context.Context, filename, text string) (int, error) {
	if text == "" {
		return 0, core.NewValidationError("ingest", "text is required")
	}

	chunks := Chunk(text, x.chunkSize)
	for i, chunk := range chunks {
		resp, err := x.embedder.Embed(ctx, x.model, chunk)
		if err != nil {
			x.logger.Warn("embedding failed during ingest",
				zap.String("source", filename),
				zap.Int("chunk", i),
				zap.Int("appended", i),
				zap.Error(err))
			return i, asUpstream("embed chunk", err)
		}

		x.store.Append(vector.Fragment{
			ID:        x.newID(),
			Text:      chunk,
			Embedding: resp.Embedding,
			Source:    filename,
			CreatedAt: x.now().UTC(),
		})
	}

	if err := x.store.Persist(ctx); err != nil {
		return len(chunks), core.NewPersistenceError("persist store", err)
	}

	x.logger.Info("document ingested",
		zap.String("source", filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("fragments", x.store.Len()))
	return len(chunks), nil
}

// Search embeds query and returns the topK most similar fragments. An empty
// store yields an empty result without calling the embedding provider.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]vector.ScoredFragment, error) {
	if x.store.Len() == 0 {
		return []vector.ScoredFragment{}, nil
	}

	resp, err := x.embedder.Embed(ctx, x.model, query)
	if err != nil {
		return nil, asUpstream("embed query", err)
	}
	return x.store.Search(ctx, resp.Embedding, topK), nil
}

// asUpstream keeps an existing kind and marks anything else as an upstream failure.
func asUpstream(op string, err error) error {
	if core.KindOf(err) != nil {
		return err
	}
	return core.NewUpstreamError(op, err)
}
