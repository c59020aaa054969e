package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneHot(dim, i int) []float64 {
	v := make([]float64, dim)
	v[i] = 1
	return v
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-4, 0.5, 2}

	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity(a, []float64{-1, -2, -3}), 1e-6)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(a, []float64{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityBounded(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0}, {0.3, -0.7, 2}, {-5, 5, -5}, {1e-3, 1e3, 7}, {0, 0, 0},
	}
	for _, a := range vectors {
		for _, b := range vectors {
			score := CosineSimilarity(a, b)
			assert.LessOrEqual(t, score, 1.0)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.Equal(t, score, CosineSimilarity(b, a))
		}
	}
}

func TestSearchSelfIsBest(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		s.Append(Fragment{ID: fmt.Sprintf("f%d", i), Text: fmt.Sprintf("text %d", i), Embedding: oneHot(5, i)})
	}

	for i, f := range s.Snapshot() {
		hits := s.Search(context.Background(), f.Embedding, 1)
		require.Len(t, hits, 1)
		assert.Equal(t, f.ID, hits[0].ID, "fragment %d", i)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	}
}

func TestSearchOrderingAndTopK(t *testing.T) {
	s := NewMemoryStore()
	s.Append(
		Fragment{ID: "far", Embedding: []float64{0, 1}},
		Fragment{ID: "tie-a", Embedding: []float64{1, 1}},
		Fragment{ID: "exact", Embedding: []float64{1, 0}},
		Fragment{ID: "tie-b", Embedding: []float64{1, 1}},
	)

	hits := s.Search(context.Background(), []float64{1, 0}, 0)
	require.Len(t, hits, 4)
	assert.Equal(t, []string{"exact", "tie-a", "tie-b", "far"}, ids(hits))

	top := s.Search(context.Background(), []float64{1, 0}, 2)
	assert.Equal(t, []string{"exact", "tie-a"}, ids(top))
}

func TestSearchEmptyStore(t *testing.T) {
	hits := NewMemoryStore().Search(context.Background(), []float64{1, 2, 3}, 3)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestConcurrentAppendAndSearch(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Append(Fragment{ID: fmt.Sprintf("%d-%d", w, i), Embedding: []float64{float64(w), float64(i)}})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for _, hit := range s.Search(context.Background(), []float64{1, 1}, 3) {
					assert.Len(t, hit.Embedding, 2)
					assert.False(t, math.IsNaN(hit.Score))
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, s.Len())
}

type recordingPersister struct {
	mu      sync.Mutex
	loaded  []Fragment
	loadErr error
	saves   [][]Fragment
	closed  bool
}

func (p *recordingPersister) Load(ctx context.Context) ([]Fragment, error) {
	return p.loaded, p.loadErr
}

func (p *recordingPersister) Save(ctx context.Context, fragments []Fragment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, append([]Fragment(nil), fragments...))
	return nil
}

func (p *recordingPersister) Close() error {
	p.closed = true
	return nil
}

func TestOpenLoadsAndPersistsFullSnapshot(t *testing.T) {
	p := &recordingPersister{loaded: []Fragment{{ID: "old"}}}
	s, err := Open(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	s.Append(Fragment{ID: "new"})
	require.NoError(t, s.Persist(context.Background()))

	require.Len(t, p.saves, 1)
	assert.Equal(t, []string{"old", "new"}, fragmentIDs(p.saves[0]))

	require.NoError(t, s.Close())
	assert.True(t, p.closed)
}

func TestOpenLoadFailureYieldsEmptyStore(t *testing.T) {
	p := &recordingPersister{loadErr: errors.New("corrupt file")}
	s, err := Open(context.Background(), p)
	require.Error(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 0, s.Len())

	s.Append(Fragment{ID: "a"})
	require.NoError(t, s.Persist(context.Background()))
	assert.Len(t, p.saves, 1)
}

func TestConcurrentPersistNeverLosesFragments(t *testing.T) {
	p := &recordingPersister{}
	s, err := Open(context.Background(), p)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Append(Fragment{ID: fmt.Sprintf("f%d", i)})
			assert.NoError(t, s.Persist(context.Background()))
		}(i)
	}
	wg.Wait()

	last := p.saves[len(p.saves)-1]
	assert.Len(t, last, 8)
}

func ids(hits []ScoredFragment) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func fragmentIDs(fs []Fragment) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}
