package server

import (
	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/vector"
)

type UploadRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text" validate:"required"`
}

type UploadResponse struct {
	OK    bool `json:"ok"`
	Added int  `json:"added"`
}

type VectorSearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"topK"`
}

type VectorSearchResponse struct {
	Results []vector.ScoredFragment `json:"results"`
}

// ChatRequest is the body of POST /api/chat. An empty conversation is
// forwarded as is.
type ChatRequest struct {
	Conversation []core.Turn `json:"conversation" validate:"dive"`
	UseRAG       bool        `json:"use_rag"`
	RAGQuery     string      `json:"rag_query"`
}

type HealthResponse struct {
	OK        bool   `json:"ok"`
	Version   string `json:"version"`
	Fragments int    `json:"fragments"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
