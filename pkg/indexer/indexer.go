// Package indexer keeps a node's embeddings in the vector store in step with
// its content.
//
// Updating a node replaces its embedding set: existing records are cleared,
// the content is segmented, one embedding request is issued per span and each
// completed request inserts its own record. Spans succeed or fail
// independently; a node whose spans did not all commit ends in StateFailed
// with the span errors joined, while the spans that did commit stay stored.
// Updates and clears of the same node never overlap.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/notevec/pkg/embeddings"
	"github.com/papercomputeco/notevec/pkg/eventstream"
	"github.com/papercomputeco/notevec/pkg/eventstream/nop"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/segment"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// ErrConfirmationRequired is returned by ClearDB when the caller did not
// confirm the destructive operation.
var ErrConfirmationRequired = errors.New("clearing the database requires confirmation")

// State is a step of the per-node update workflow.
type State string

const (
	StateStart      State = "start"
	StateClearing   State = "clearing"
	StateSegmenting State = "segmenting"
	StateEmbedding  State = "embedding"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Requester issues asynchronous embedding requests. *embeddings.Gateway
// implements it.
type Requester interface {
	RequestFunc(ctx context.Context, text string, fn func(embeddings.Result))
}

// Config holds the collaborators of an Indexer.
type Config struct {
	Store     vector.Store
	Gateway   Requester
	Segmenter segment.Strategy
	Source    notes.Source

	// Publisher receives an event after every operation. Defaults to a
	// no-op publisher.
	Publisher eventstream.Publisher

	// StoreProvider and Dimensions describe the store in published events.
	StoreProvider string
	Dimensions    uint

	// OnTransition, when set, is called as each node moves between states.
	OnTransition func(nodeID string, state State)

	Logger *slog.Logger
}

// Indexer runs the node update workflow.
type Indexer struct {
	store        vector.Store
	gateway      Requester
	segmenter    segment.Strategy
	source       notes.Source
	publisher    eventstream.Publisher
	storeMeta    eventstream.StoreMeta
	onTransition func(string, State)
	logger       *slog.Logger

	nodes nodeLocks
}

// New validates c and returns an Indexer.
func New(c Config) (*Indexer, error) {
	switch {
	case c.Store == nil:
		return nil, fmt.Errorf("%w: indexer requires a vector store", vector.ErrConfiguration)
	case c.Gateway == nil:
		return nil, fmt.Errorf("%w: indexer requires an embedding gateway", vector.ErrConfiguration)
	case c.Segmenter == nil:
		return nil, fmt.Errorf("%w: indexer requires a segmenter strategy", vector.ErrConfiguration)
	case c.Source == nil:
		return nil, fmt.Errorf("%w: indexer requires a note source", vector.ErrConfiguration)
	case c.Logger == nil:
		return nil, fmt.Errorf("%w: indexer requires a logger", vector.ErrConfiguration)
	}

	publisher := c.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	return &Indexer{
		store:        c.Store,
		gateway:      c.Gateway,
		segmenter:    c.Segmenter,
		source:       c.Source,
		publisher:    publisher,
		storeMeta:    eventstream.StoreMeta{Provider: c.StoreProvider, Dimensions: c.Dimensions},
		onTransition: c.OnTransition,
		logger:       c.Logger,
	}, nil
}

// NodeResult reports the outcome of one node update.
type NodeResult struct {
	NodeID string `json:"node_id"`
	State  State  `json:"state"`

	// Spans is the number of spans the segmenter produced.
	Spans int `json:"spans"`

	// Inserted and Failed count spans whose record was or was not stored.
	// Spans never issued because of cancellation count as failed.
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`

	RecordIDs []int64       `json:"record_ids"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

func (ix *Indexer) transition(result *NodeResult, state State) {
	result.State = state
	ix.logger.Debug("node state", "node_id", result.NodeID, "state", string(state))
	if ix.onTransition != nil {
		ix.onTransition(result.NodeID, state)
	}
}

// UpdateNodeByID resolves id through the note source and updates it.
func (ix *Indexer) UpdateNodeByID(ctx context.Context, id string) (*NodeResult, error) {
	node, err := ix.source.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	return ix.UpdateNode(ctx, node)
}

// UpdateNode replaces the embeddings of node. It returns once every issued
// embedding request has completed. The returned error is the result's Err.
//
// When ctx is cancelled no further requests are issued; requests already
// issued still complete and insert their records.
func (ix *Indexer) UpdateNode(ctx context.Context, node *notes.Node) (*NodeResult, error) {
	if node == nil || node.ID == "" {
		return nil, fmt.Errorf("%w: no node to update", vector.ErrConfiguration)
	}

	started := time.Now()
	result := &NodeResult{NodeID: node.ID, RecordIDs: []int64{}}
	ix.transition(result, StateStart)

	unlock := ix.nodes.lock(node.ID)
	defer unlock()

	ix.transition(result, StateClearing)
	if err := ix.store.Clear(ctx, node.ID); err != nil {
		return ix.finish(ctx, node, result, started, fmt.Errorf("clearing node %s: %w", node.ID, err))
	}

	ix.transition(result, StateSegmenting)
	var spans []vector.Span
	for span := range ix.segmenter.Segment(node) {
		if strings.TrimSpace(node.Text(span)) == "" {
			ix.logger.Debug("skipping blank span", "node_id", node.ID, "start", span.Start, "end", span.End)
			continue
		}
		spans = append(spans, span)
	}
	result.Spans = len(spans)

	ix.transition(result, StateEmbedding)
	err := ix.embedSpans(ctx, node, spans, result)

	return ix.finish(ctx, node, result, started, err)
}

// embedSpans issues one request per span and waits for all of them. Each
// continuation inserts its own record.
func (ix *Indexer) embedSpans(ctx context.Context, node *notes.Node, spans []vector.Span, result *NodeResult) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	// Issued requests outlive cancellation of ctx.
	detached := context.WithoutCancel(ctx)

	for i, span := range spans {
		if err := ctx.Err(); err != nil {
			skipped := len(spans) - i
			mu.Lock()
			result.Failed += skipped
			errs = append(errs, fmt.Errorf("%d spans not requested: %w", skipped, err))
			mu.Unlock()
			break
		}

		wg.Add(1)
		ix.gateway.RequestFunc(detached, node.Text(span), func(r embeddings.Result) {
			defer wg.Done()

			var recordID int64
			err := r.Err
			if err == nil {
				recordID, err = ix.store.Insert(detached, node.ID, span, r.Embedding)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("span %d-%d: %w", span.Start, span.End, err))
				return
			}
			result.Inserted++
			result.RecordIDs = append(result.RecordIDs, recordID)
		})
	}

	wg.Wait()
	return errors.Join(errs...)
}

func (ix *Indexer) finish(ctx context.Context, node *notes.Node, result *NodeResult, started time.Time, err error) (*NodeResult, error) {
	result.Duration = time.Since(started)
	result.Err = err

	if err != nil {
		ix.transition(result, StateFailed)
		ix.logger.Warn("embedding update failed",
			"node_id", node.ID,
			"spans", result.Spans,
			"inserted", result.Inserted,
			"failed", result.Failed,
			"error", err,
		)
	} else {
		ix.transition(result, StateCommitted)
		ix.logger.Info("embeddings updated",
			"node_id", node.ID,
			"spans", result.Spans,
			"records", result.Inserted,
		)
	}

	event := eventstream.NewEvent(eventstream.EventTypeNodeIndexed)
	event.Node = &eventstream.NodeMeta{ID: node.ID, Path: node.Path, Title: node.Title}
	event.Result = eventstream.ResultMeta{
		State:      string(result.State),
		Spans:      result.Spans,
		Inserted:   result.Inserted,
		Failed:     result.Failed,
		DurationMs: result.Duration.Milliseconds(),
	}
	if err != nil {
		event.Result.Error = err.Error()
	}
	ix.publish(ctx, event)

	return result, err
}

// Summary reports the outcome of UpdateAll.
type Summary struct {
	Nodes     int           `json:"nodes"`
	Committed int           `json:"committed"`
	Failed    int           `json:"failed"`
	Records   int           `json:"records"`
	Results   []*NodeResult `json:"results"`
}

// ProgressFunc is called after each node of a bulk update.
type ProgressFunc func(done, total int, result *NodeResult)

// UpdateAll updates every node of the note source, one node after another.
// A failed node does not stop the run; the returned error joins the errors
// of all failed nodes. Cancelling ctx stops the run before the next node.
func (ix *Indexer) UpdateAll(ctx context.Context, progress ProgressFunc) (*Summary, error) {
	nodes, err := ix.source.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	summary := &Summary{Nodes: len(nodes), Results: make([]*NodeResult, 0, len(nodes))}
	var errs []error

	for i, node := range nodes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("update stopped after %d of %d nodes: %w", i, len(nodes), err))
			break
		}

		result, err := ix.UpdateNode(ctx, node)
		if result != nil {
			summary.Results = append(summary.Results, result)
			summary.Records += result.Inserted
		}
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("node %s: %w", node.ID, err))
		} else {
			summary.Committed++
		}

		if progress != nil {
			progress(i+1, len(nodes), result)
		}
	}

	ix.logger.Info("bulk update finished",
		"nodes", summary.Nodes,
		"committed", summary.Committed,
		"failed", summary.Failed,
		"records", summary.Records,
	)

	return summary, errors.Join(errs...)
}

// ClearNode removes every record of the node with the given id.
func (ix *Indexer) ClearNode(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: no node to clear", vector.ErrConfiguration)
	}

	unlock := ix.nodes.lock(id)
	defer unlock()

	if err := ix.store.Clear(ctx, id); err != nil {
		return fmt.Errorf("clearing node %s: %w", id, err)
	}

	ix.logger.Info("embeddings cleared", "node_id", id)

	event := eventstream.NewEvent(eventstream.EventTypeNodeCleared)
	event.Node = &eventstream.NodeMeta{ID: id}
	event.Result.State = string(StateCommitted)
	ix.publish(ctx, event)

	return nil
}

// ClearDB drops every record and re-provisions the store. confirm must be
// true; otherwise ErrConfirmationRequired is returned and nothing changes.
func (ix *Indexer) ClearDB(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}

	if err := ix.store.DropAll(ctx); err != nil {
		return fmt.Errorf("clearing database: %w", err)
	}

	ix.logger.Info("embedding database cleared")

	event := eventstream.NewEvent(eventstream.EventTypeStoreReset)
	event.Result.State = string(StateCommitted)
	ix.publish(ctx, event)

	return nil
}

// Stats reports the store contents.
func (ix *Indexer) Stats(ctx context.Context) (vector.Stats, error) {
	return ix.store.Stats(ctx)
}

func (ix *Indexer) publish(ctx context.Context, event *eventstream.IndexEvent) {
	event.Store = ix.storeMeta
	if err := ix.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		ix.logger.Warn("publishing index event failed",
			"event_type", event.EventType,
			"event_id", event.EventID,
			"error", err,
		)
	}
}

// nodeLocks serializes work on one node id. Entries are dropped once no
// caller holds or waits for them.
type nodeLocks struct {
	mu    sync.Mutex
	locks map[string]*nodeLock
}

type nodeLock struct {
	sync.Mutex
	refs int
}

func (l *nodeLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*nodeLock{}
	}
	nl, ok := l.locks[id]
	if !ok {
		nl = &nodeLock{}
		l.locks[id] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.Lock()
	return func() {
		nl.Unlock()

		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
