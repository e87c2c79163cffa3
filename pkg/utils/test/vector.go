package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/notevec/pkg/vector"
	"github.com/papercomputeco/notevec/pkg/vector/inmemory"
)

// MockStore is an in-memory vector.Store with failure injection.
type MockStore struct {
	*inmemory.Store

	// FailInsert, when set, is consulted before every insert; a non-nil
	// result fails that insert without storing anything.
	FailInsert func(nodeID string, span vector.Span) error

	// FailClear is returned by Clear when set.
	FailClear error

	mu      sync.Mutex
	inserts int
	clears  []string
}

func NewMockStore(dimensions uint) *MockStore {
	s, err := inmemory.NewStore(dimensions)
	if err != nil {
		panic(err)
	}
	return &MockStore{Store: s}
}

func (m *MockStore) Insert(ctx context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	m.mu.Lock()
	m.inserts++
	fail := m.FailInsert
	m.mu.Unlock()

	if fail != nil {
		if err := fail(nodeID, span); err != nil {
			return 0, err
		}
	}
	return m.Store.Insert(ctx, nodeID, span, embedding)
}

func (m *MockStore) Clear(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	m.clears = append(m.clears, nodeID)
	m.mu.Unlock()

	if m.FailClear != nil {
		return m.FailClear
	}
	return m.Store.Clear(ctx, nodeID)
}

// Inserts returns the number of attempted inserts.
func (m *MockStore) Inserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

// Clears returns the node ids Clear has been called with.
func (m *MockStore) Clears() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.clears...)
}

var _ vector.Store = (*MockStore)(nil)
