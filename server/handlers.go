package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/core"
	"github.com/hubenschmidt/ultrarelay/frame"
	"github.com/hubenschmidt/ultrarelay/relay"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !s.decode(w, r, "upload", &req) {
		return
	}
	if req.Filename == "" {
		req.Filename = "unknown"
	}

	added, err := s.index.Ingest(r.Context(), req.Filename, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{OK: true, Added: added})
}

func (s *Server) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	if !s.decode(w, r, "vector search", &req) {
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.defaultTopK
	}

	results, err := s.index.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, VectorSearchResponse{Results: results})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !s.decode(w, r, "chat", &req) {
		return
	}

	if _, ok := w.(http.Flusher); !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	session, err := s.relay.Open(r.Context(), relay.Request{
		Conversation: req.Conversation,
		UseRAG:       req.UseRAG,
		RAGQuery:     req.RAGQuery,
		RequestID:    middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Headers are committed here. Later failures travel in-band.
	frame.SetHeaders(w)
	session.Pump(r.Context(), frame.NewWriter(w))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		OK:        true,
		Version:   Version,
		Fragments: s.index.Store().Len(),
	})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Summary())
}

// decode reads a JSON body into dst and validates it. On failure the
// response has been written and false is returned.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return false
		}
		s.writeError(w, r, core.NewValidationError(op, "invalid JSON body: "+err.Error()))
		return false
	}

	if err := validateRequest(op, dst); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

// writeError maps error kinds to status codes: validation failures are the
// caller's to fix (400), everything else is a server-side failure (500).
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrValidation) {
		status = http.StatusBadRequest
	} else {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}

	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) && ce.Err != nil {
		msg = ce.Err.Error()
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
