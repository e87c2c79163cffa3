// Package notes defines the nodes notevec indexes and the sources that
// supply them.
package notes

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/papercomputeco/notevec/pkg/vector"
)

// ErrNodeNotFound is returned when a source has no node with the requested id.
var ErrNodeNotFound = fmt.Errorf("%w: node not found", vector.ErrConfiguration)

// Node is one document owned by the host note system.
type Node struct {
	// ID is the opaque, stable identifier of the node.
	ID string `json:"id"`

	// Path locates the node in the host system, when it has one.
	Path string `json:"path,omitempty"`

	Title string `json:"title,omitempty"`

	// Content is the full text of the node; spans index into it.
	Content string `json:"-"`

	// MetadataEnd is the byte offset where the leading metadata region of
	// Content ends and the body begins.
	MetadataEnd int `json:"-"`
}

// Text returns the content covered by span, clamped to the content bounds.
func (n *Node) Text(span vector.Span) string {
	start := min(max(span.Start, 0), len(n.Content))
	end := min(max(span.End, start), len(n.Content))
	return n.Content[start:end]
}

// Source supplies nodes to the indexer and resolves search results.
type Source interface {
	// Nodes returns every node known to the source.
	Nodes(ctx context.Context) ([]*Node, error)

	// Node returns the node with the given id, or ErrNodeNotFound.
	Node(ctx context.Context, id string) (*Node, error)
}

// MemorySource is a Source over an in-process map of nodes.
type MemorySource struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewMemorySource returns a MemorySource holding nodes.
func NewMemorySource(nodes ...*Node) *MemorySource {
	s := &MemorySource{nodes: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

// Put adds or replaces a node.
func (s *MemorySource) Put(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

// Remove deletes a node; removing an unknown id does nothing.
func (s *MemorySource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
}

// Nodes returns all nodes ordered by id.
func (s *MemorySource) Nodes(_ context.Context) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := slices.Collect(maps.Values(s.nodes))
	slices.SortFunc(nodes, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
	return nodes, nil
}

// Node returns the node with the given id.
func (s *MemorySource) Node(_ context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

var _ Source = (*MemorySource)(nil)
