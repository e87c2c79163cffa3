package testutils

import "github.com/papercomputeco/notevec/pkg/notes"

// NewTestNode creates a node with no metadata region.
func NewTestNode(id, content string) *notes.Node {
	return &notes.Node{
		ID:      id,
		Path:    id + ".org",
		Title:   id,
		Content: content,
	}
}
