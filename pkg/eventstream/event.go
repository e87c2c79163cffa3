// Package eventstream publishes notifications about changes to the
// embedding store.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeNodeIndexed is emitted after a node's embeddings are replaced.
	EventTypeNodeIndexed = "notevec.node.indexed"

	// EventTypeNodeCleared is emitted after a node's embeddings are removed.
	EventTypeNodeCleared = "notevec.node.cleared"

	// EventTypeStoreReset is emitted after the whole store is dropped.
	EventTypeStoreReset = "notevec.store.reset"
)

// IndexEvent is a transport-neutral event payload for a store change.
type IndexEvent struct {
	SchemaVersion int        `json:"schema_version"`
	EventType     string     `json:"event_type"`
	EventID       string     `json:"event_id"`
	EmittedAt     time.Time  `json:"emitted_at"`
	Node          *NodeMeta  `json:"node,omitempty"`
	Result        ResultMeta `json:"result"`
	Store         StoreMeta  `json:"store"`
}

// NodeMeta identifies the node an event is about.
type NodeMeta struct {
	ID    string `json:"id"`
	Path  string `json:"path,omitempty"`
	Title string `json:"title,omitempty"`
}

// ResultMeta captures the outcome of the operation.
type ResultMeta struct {
	State      string `json:"state"`
	Spans      int    `json:"spans"`
	Inserted   int    `json:"inserted"`
	Failed     int    `json:"failed"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// StoreMeta describes the store the change was applied to.
type StoreMeta struct {
	Provider   string `json:"provider"`
	Dimensions uint   `json:"dimensions"`
}

// NewEvent returns an event of the given type with a fresh id and timestamp.
func NewEvent(eventType string) *IndexEvent {
	return &IndexEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}
