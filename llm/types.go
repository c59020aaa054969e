package llm

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one streaming chat completion call. System is sent ahead
// of Messages as the system instruction.
type ChatRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// EmbeddingResponse represents a single embedding result.
type EmbeddingResponse struct {
	Embedding  []float64 `json:"embedding"`
	TokenCount int       `json:"token_count"`
}
