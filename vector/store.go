// Package vector provides fragment storage and similarity search.
package vector

import (
	"context"
	"time"
)

// Fragment is an immutable chunk of an ingested document with its embedding.
type Fragment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// ScoredFragment is a search hit. The fragment fields are flattened in JSON.
type ScoredFragment struct {
	Fragment
	Score float64 `json:"score"`
}

// Persister reads and writes the complete fragment list.
type Persister interface {
	// Load returns every persisted fragment in insertion order.
	Load(ctx context.Context) ([]Fragment, error)

	// Save writes the full list. Fragments already persisted may be passed again.
	Save(ctx context.Context, fragments []Fragment) error

	// Close releases resources.
	Close() error
}
