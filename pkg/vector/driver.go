// Package vector provides the vector store interface and its backends.
//
// A store keeps two relations in lockstep: a span registry mapping a record id
// to the node and the byte span it was computed from, and a vector index
// holding the embedding under the same record id. Every backend guarantees
// that neither relation ever holds a key missing from the other.
package vector

import (
	"cmp"
	"context"
	"slices"
)

// DefaultTopK is the number of matches Query returns when k is not positive.
const DefaultTopK = 20

// Span is a contiguous byte range [Start, End) of a node's content.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Record is a span registry row.
type Record struct {
	// ID is the store generated key shared with the vector index.
	ID int64 `json:"record_id"`

	// NodeID is the opaque identifier of the owning node.
	NodeID string `json:"node_id"`

	Span
}

// Match is a query result: a record and its distance to the query vector.
type Match struct {
	Record

	// Distance to the query vector; smaller is more similar.
	Distance float64 `json:"distance"`
}

// Stats summarizes the store contents.
type Stats struct {
	Records    int64 `json:"records"`
	Nodes      int64 `json:"nodes"`
	Dimensions uint  `json:"dimensions"`
}

// Store persists embedding records and answers nearest neighbor queries.
//
// Implementations connect lazily: the first operation opens the underlying
// connection and provisions the schema.
type Store interface {
	// EnsureSchema creates the span registry and the vector index sized for
	// the configured dimensions. It is idempotent and never migrates data:
	// an existing store with a different width fails with
	// ErrDimensionMismatch.
	EnsureSchema(ctx context.Context) error

	// Insert allocates a fresh record id and writes the span registry row and
	// the vector under it in one transaction.
	Insert(ctx context.Context, nodeID string, span Span, embedding []float32) (int64, error)

	// Clear removes every record owned by nodeID. Clearing a node without
	// records is a no-op.
	Clear(ctx context.Context, nodeID string) error

	// DropAll removes every record and re-provisions an empty schema.
	DropAll(ctx context.Context) error

	// Query returns up to topK records nearest to embedding ordered by
	// ascending distance, ties broken by ascending record id.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)

	// Records returns the records owned by nodeID ordered by record id.
	Records(ctx context.Context, nodeID string) ([]Record, error)

	// Stats reports record and node counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the connection, if one was opened.
	Close() error
}

// SortMatches orders matches by ascending distance, ties broken by ascending
// record id.
func SortMatches(matches []Match) {
	slices.SortFunc(matches, func(a, b Match) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), cmp.Compare(a.ID, b.ID))
	})
}
