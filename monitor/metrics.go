package monitor

import "time"

// RelayMetrics describes one finished chat relay request.
type RelayMetrics struct {
	RequestID string        `json:"request_id,omitempty"`
	Model     string        `json:"model"`
	State     string        `json:"state"`
	Chunks    int           `json:"chunks"`
	Bytes     int           `json:"bytes"`
	UsedRAG   bool          `json:"used_rag"`
	Docs      int           `json:"docs"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Summary aggregates every request recorded since the collector was
// created or last reset.
type Summary struct {
	TotalRequests int            `json:"total_requests"`
	ByState       map[string]int `json:"by_state"`
	TotalChunks   int            `json:"total_chunks"`
	TotalBytes    int            `json:"total_bytes"`
	RAGRequests   int            `json:"rag_requests"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	Recent        []RelayMetrics `json:"recent"`
	Since         time.Time      `json:"since"`
}
