// Package inmemory provides an in-process vector store using exact search.
package inmemory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/papercomputeco/notevec/pkg/vector"
)

// entry is a span registry row and its vector, kept together so that the two
// can never diverge.
type entry struct {
	record    vector.Record
	embedding []float32
}

// Store implements vector.Store using in-memory maps.
type Store struct {
	dimensions uint

	// mu guards every field below; each operation holds it for its whole
	// duration, which makes Insert and Clear atomic for readers.
	mu      sync.RWMutex
	nextID  int64
	entries map[int64]*entry
	byNode  map[string][]int64
}

// NewStore creates an empty in-memory store.
func NewStore(dimensions uint) (*Store, error) {
	if dimensions == 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", vector.ErrConfiguration)
	}

	return &Store{
		dimensions: dimensions,
		nextID:     1,
		entries:    make(map[int64]*entry),
		byNode:     make(map[string][]int64),
	}, nil
}

// EnsureSchema is a no-op; the maps are created with the store.
func (s *Store) EnsureSchema(_ context.Context) error {
	return nil
}

// Insert stores the record and its vector under a fresh id.
func (s *Store) Insert(_ context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("%w: node id is required", vector.ErrConfiguration)
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	s.entries[id] = &entry{
		record:    vector.Record{ID: id, NodeID: nodeID, Span: span},
		embedding: slices.Clone(embedding),
	}
	s.byNode[nodeID] = append(s.byNode[nodeID], id)

	return id, nil
}

// Clear removes every record owned by nodeID.
func (s *Store) Clear(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byNode[nodeID] {
		delete(s.entries, id)
	}
	delete(s.byNode, nodeID)

	return nil
}

// DropAll removes every record. Record ids keep increasing.
func (s *Store) DropAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64]*entry)
	s.byNode = make(map[string][]int64)

	return nil
}

// Query ranks every stored vector by L2 distance.
func (s *Store) Query(_ context.Context, embedding []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]vector.Match, 0, len(s.entries))
	for _, e := range s.entries {
		matches = append(matches, vector.Match{
			Record:   e.record,
			Distance: euclidean(embedding, e.embedding),
		})
	}

	vector.SortMatches(matches)

	if len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

// Records returns the records owned by nodeID ordered by id.
func (s *Store) Records(_ context.Context, nodeID string) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]vector.Record, 0, len(s.byNode[nodeID]))
	for _, id := range s.byNode[nodeID] {
		records = append(records, s.entries[id].record)
	}

	return records, nil
}

// Stats reports record and node counts.
func (s *Store) Stats(_ context.Context) (vector.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return vector.Stats{
		Records:    int64(len(s.entries)),
		Nodes:      int64(len(s.byNode)),
		Dimensions: s.dimensions,
	}, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ vector.Store = (*Store)(nil)
