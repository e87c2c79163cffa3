package testutils

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/papercomputeco/notevec/pkg/embeddings"
)

// MockEmbedder is a test embedder that returns predictable embeddings
type MockEmbedder struct {
	// Embeddings maps input text to the vector returned for it.
	Embeddings map[string][]float32

	// Dimensions is the width of generated vectors for unmapped text.
	Dimensions int

	// FailOn causes Embed to return a provider error when the input text matches
	FailOn map[string]bool

	// Gate, when set, makes every Embed call wait until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	calls []string
}

func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dimensions: dimensions,
		FailOn:     make(map[string]bool),
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, &embeddings.ProviderError{Provider: "mock", Kind: embeddings.KindTransport, Err: ctx.Err()}
		}
	}

	if m.FailOn[text] {
		return nil, &embeddings.ProviderError{
			Provider: "mock",
			Kind:     embeddings.KindStatus,
			Status:   500,
			Message:  "mock embedding failure for: " + text,
		}
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return HashEmbedding(text, m.Dimensions), nil
}

// Calls returns the texts Embed has been called with.
func (m *MockEmbedder) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockEmbedder) Close() error {
	return nil
}

// HashEmbedding derives a deterministic unit-range vector from text.
func HashEmbedding(text string, dimensions int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dimensions)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed>>40) / float32(1<<24)
	}
	return v
}
