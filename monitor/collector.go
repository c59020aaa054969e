package monitor

import (
	"sync"
	"time"
)

// DefaultRecent is how many finished requests the in-memory collector keeps.
const DefaultRecent = 50

type MetricsCollector interface {
	Record(metrics RelayMetrics)
	Summary() Summary
}

type InMemoryCollector struct {
	mu        sync.RWMutex
	byState   map[string]int
	total     int
	chunks    int
	bytes     int
	rag       int
	latency   time.Duration
	recent    []RelayMetrics
	keep      int
	startTime time.Time
}

func NewInMemoryCollector(keep int) *InMemoryCollector {
	if keep <= 0 {
		keep = DefaultRecent
	}
	return &InMemoryCollector{
		byState:   make(map[string]int),
		keep:      keep,
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Record(metrics RelayMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.byState[metrics.State]++
	c.chunks += metrics.Chunks
	c.bytes += metrics.Bytes
	c.latency += metrics.Duration
	if metrics.UsedRAG {
		c.rag++
	}

	c.recent = append(c.recent, metrics)
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
}

func (c *InMemoryCollector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byState := make(map[string]int, len(c.byState))
	for k, v := range c.byState {
		byState[k] = v
	}

	var avg float64
	if c.total > 0 {
		avg = float64(c.latency.Milliseconds()) / float64(c.total)
	}

	// newest first
	recent := make([]RelayMetrics, len(c.recent))
	for i, m := range c.recent {
		recent[len(c.recent)-1-i] = m
	}

	return Summary{
		TotalRequests: c.total,
		ByState:       byState,
		TotalChunks:   c.chunks,
		TotalBytes:    c.bytes,
		RAGRequests:   c.rag,
		AvgLatencyMs:  avg,
		Recent:        recent,
		Since:         c.startTime,
	}
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Record(metrics RelayMetrics) {}

func (c *NoOpCollector) Summary() Summary {
	return Summary{ByState: map[string]int{}, Recent: []RelayMetrics{}}
}
