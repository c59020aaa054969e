package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/ultrarelay/core"
)

func writeDelta(w io.Writer, content string) {
	chunk, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": content}}},
	})
	fmt.Fprintf(w, "data: %s\n\n", chunk)
}

func drain(t *testing.T, s Stream) []string {
	t.Helper()
	var chunks []string
	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
}

func TestOpenAIChatStream(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		writeDelta(w, "He")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		writeDelta(w, "llo")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{APIKey: "sk-test", BaseURL: server.URL})
	stream, err := client.ChatStream(context.Background(), ChatRequest{
		Model:       "gpt-4o-mini",
		System:      "be brief",
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.2,
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"He", "llo"}, drain(t, stream))

	assert.Equal(t, true, got["stream"])
	assert.Equal(t, "gpt-4o-mini", got["model"])
	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "be brief", messages[0].(map[string]any)["content"])
	assert.Equal(t, "hi", messages[1].(map[string]any)["content"])
}

func TestOpenAIChatStreamWithoutDoneSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDelta(w, "partial")
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
	stream, err := client.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, []string{"partial"}, drain(t, stream))
}

func TestOpenAIChatStreamErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
	stream, err := client.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o-mini"})

	assert.Nil(t, stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstream)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOpenAIChatStreamInBandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDelta(w, "ok")
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"server_error\"}}\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
	stream, err := client.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", chunk)

	_, err = stream.Next()
	assert.ErrorIs(t, err, core.ErrUpstream)
}

func TestOpenAIChatStreamCloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDelta(w, "first")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			close(released)
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
	stream, err := client.ChatStream(context.Background(), ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)

	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", chunk)

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case <-released:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream connection was not released after Close")
	}
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req["model"])
		assert.Equal(t, "hello", req["input"])

		json.NewEncoder(w).Encode(map[string]any{
			"data":  []map[string]any{{"embedding": []float64{0.1, 0.2, 0.3}}},
			"usage": map[string]int{"prompt_tokens": 1},
		})
	}))
	defer server.Close()

	client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
	resp, err := client.Embed(context.Background(), "text-embedding-3-small", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, resp.Embedding)
	assert.Equal(t, 1, resp.TokenCount)
}

func TestOpenAIEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"empty", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"data":[]}`) }},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `<html>`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewOpenAIClientWithConfig(ClientConfig{BaseURL: server.URL})
			_, err := client.Embed(context.Background(), "text-embedding-3-small", "x")
			assert.ErrorIs(t, err, core.ErrUpstream)
		})
	}
}
