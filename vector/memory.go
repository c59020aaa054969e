package vector

import (
	"context"
	"sort"
	"sync"
)

// Store is the process-wide fragment list. Appends are short critical
// sections; Persist serialises writers and always saves a full snapshot.
type Store struct {
	mu        sync.RWMutex
	fragments []Fragment

	persistMu sync.Mutex
	persister Persister
}

// NewMemoryStore creates a store that is never written to durable storage.
func NewMemoryStore() *Store {
	return &Store{}
}

// Open creates a store backed by p and loads its fragments. When loading
// fails the returned store is empty and still usable; the error is returned
// so the caller can report it.
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := &Store{persister: p}
	fragments, err := p.Load(ctx)
	if err != nil {
		return s, err
	}
	s.fragments = fragments
	return s, nil
}

// Append adds fragments to the in-memory list.
func (s *Store) Append(fragments ...Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments = append(s.fragments, fragments...)
}

// Persist writes the current list to the persister.
func (s *Store) Persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	return s.persister.Save(ctx, s.Snapshot())
}

// Snapshot returns the fragments visible at the time of the call. The
// returned slice must not be modified.
func (s *Store) Snapshot() []Fragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fragments[:len(s.fragments):len(s.fragments)]
}

// Len returns the number of stored fragments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fragments)
}

// Search scores every fragment against embedding and returns the topK best,
// highest first. Equal scores keep insertion order. topK <= 0 returns all.
func (s *Store) Search(ctx context.Context, embedding []float64, topK int) []ScoredFragment {
	snapshot := s.Snapshot()

	results := make([]ScoredFragment, len(snapshot))
	for i, f := range snapshot {
		results[i] = ScoredFragment{Fragment: f, Score: CosineSimilarity(embedding, f.Embedding)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Close closes the persister, if any.
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}
