package indexer_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/embeddings"
	"github.com/papercomputeco/notevec/pkg/eventstream"
	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/segment"
	testutils "github.com/papercomputeco/notevec/pkg/utils/test"
	"github.com/papercomputeco/notevec/pkg/vector"
)

const dims = 8

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.IndexEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *eventstream.IndexEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType)
	}
	return types
}

var _ = Describe("Indexer", func() {
	var (
		ctx       context.Context
		embedder  *testutils.MockEmbedder
		store     *testutils.MockStore
		source    *notes.MemorySource
		publisher *recordingPublisher
		mu        sync.Mutex
		states    []indexer.State
		ix        *indexer.Indexer
	)

	nodeA := func() *notes.Node {
		return testutils.NewTestNode("a", "Hello world.\n\nGoodbye.")
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder(dims)
		store = testutils.NewMockStore(dims)
		source = notes.NewMemorySource(nodeA(), testutils.NewTestNode("b", "Only paragraph."))
		publisher = &recordingPublisher{}
		states = nil

		var err error
		ix, err = indexer.New(indexer.Config{
			Store:     store,
			Gateway:   embeddings.NewGateway(embedder, embeddings.GatewayConfig{MaxInFlight: 4}, logger.Nop()),
			Segmenter: segment.Paragraph{},
			Source:    source,
			Publisher: publisher,
			OnTransition: func(nodeID string, s indexer.State) {
				mu.Lock()
				defer mu.Unlock()
				if nodeID == "a" {
					states = append(states, s)
				}
			},
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	recordsOf := func(id string) []vector.Record {
		records, err := store.Records(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		return records
	}

	Describe("New", func() {
		It("requires every collaborator", func() {
			_, err := indexer.New(indexer.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(vector.ErrConfiguration))
		})
	})

	Describe("UpdateNode", func() {
		It("embeds each paragraph and finds the second one by similarity", func() {
			result, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.State).To(Equal(indexer.StateCommitted))
			Expect(result.Spans).To(Equal(2))
			Expect(result.Inserted).To(Equal(2))
			Expect(result.RecordIDs).To(HaveLen(2))

			records := recordsOf("a")
			Expect(records).To(HaveLen(2))
			Expect([]vector.Span{records[0].Span, records[1].Span}).To(ConsistOf(
				vector.Span{Start: 0, End: 12},
				vector.Span{Start: 14, End: 22},
			))

			matches, err := store.Query(ctx, testutils.HashEmbedding("Goodbye.", dims), 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches[0].NodeID).To(Equal("a"))
			Expect(matches[0].Span).To(Equal(vector.Span{Start: 14, End: 22}))
		})

		It("walks the state machine in order", func() {
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())
			Expect(states).To(Equal([]indexer.State{
				indexer.StateStart,
				indexer.StateClearing,
				indexer.StateSegmenting,
				indexer.StateEmbedding,
				indexer.StateCommitted,
			}))
		})

		It("replaces rather than accumulates records", func() {
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())
			first := recordsOf("a")

			_, err = ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())
			second := recordsOf("a")

			Expect(second).To(HaveLen(len(first)))
			Expect(second[0].ID).To(BeNumerically(">", first[len(first)-1].ID))
		})

		It("drops records of paragraphs that no longer exist", func() {
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())

			_, err = ix.UpdateNode(ctx, testutils.NewTestNode("a", "Hello world."))
			Expect(err).NotTo(HaveOccurred())
			Expect(recordsOf("a")).To(HaveLen(1))
		})

		It("fails fast on a missing node without touching the store", func() {
			_, err := ix.UpdateNode(ctx, nil)
			Expect(err).To(MatchError(vector.ErrConfiguration))

			_, err = ix.UpdateNode(ctx, &notes.Node{Content: "no id"})
			Expect(err).To(MatchError(vector.ErrConfiguration))

			Expect(store.Clears()).To(BeEmpty())
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("keeps sibling spans when one embedding request fails", func() {
			embedder.FailOn["Goodbye."] = true

			result, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).To(MatchError(vector.ErrProvider))
			Expect(result.State).To(Equal(indexer.StateFailed))
			Expect(result.Inserted).To(Equal(1))
			Expect(result.Failed).To(Equal(1))

			records := recordsOf("a")
			Expect(records).To(HaveLen(1))
			Expect(records[0].Span).To(Equal(vector.Span{Start: 0, End: 12}))
		})

		It("joins the errors of every failed span", func() {
			embedder.FailOn["Hello world."] = true
			store.FailInsert = func(_ string, span vector.Span) error {
				if span.Start == 14 {
					return vector.StorageError("inserting", errors.New("disk full"))
				}
				return nil
			}

			result, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).To(MatchError(vector.ErrProvider))
			Expect(err).To(MatchError(vector.ErrStorage))
			Expect(result.Failed).To(Equal(2))
			Expect(recordsOf("a")).To(BeEmpty())
		})

		It("fails without embedding when the old records cannot be cleared", func() {
			store.FailClear = vector.StorageError("deleting spans", errors.New("locked"))

			result, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).To(MatchError(vector.ErrStorage))
			Expect(result.State).To(Equal(indexer.StateFailed))
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("skips blank spans", func() {
			result, err := ix.UpdateNode(ctx, testutils.NewTestNode("blank", "  \n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.State).To(Equal(indexer.StateCommitted))
			Expect(result.Spans).To(BeZero())
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("issues nothing once the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			result, err := ix.UpdateNode(cancelled, nodeA())
			Expect(err).To(MatchError(context.Canceled))
			Expect(result.Failed).To(Equal(2))
			Expect(embedder.Calls()).To(BeEmpty())
		})

		It("lets requests issued before cancellation insert their records", func() {
			embedder.Gate = make(chan struct{})
			cancellable, cancel := context.WithCancel(ctx)

			done := make(chan *indexer.NodeResult)
			go func() {
				defer GinkgoRecover()
				result, _ := ix.UpdateNode(cancellable, nodeA())
				done <- result
			}()

			Eventually(embedder.Calls).Should(HaveLen(2))
			cancel()
			close(embedder.Gate)

			var result *indexer.NodeResult
			Eventually(done).Should(Receive(&result))
			Expect(result.State).To(Equal(indexer.StateCommitted))
			Expect(result.Inserted).To(Equal(2))
			Expect(recordsOf("a")).To(HaveLen(2))
		})

		It("serializes overlapping updates of the same node", func() {
			embedder.Gate = make(chan struct{})

			results := make(chan *indexer.NodeResult, 2)
			for range 2 {
				go func() {
					defer GinkgoRecover()
					result, _ := ix.UpdateNode(ctx, nodeA())
					results <- result
				}()
			}

			Eventually(embedder.Calls).Should(HaveLen(2))
			Consistently(embedder.Calls, 100*time.Millisecond).Should(HaveLen(2))
			close(embedder.Gate)

			for range 2 {
				var result *indexer.NodeResult
				Eventually(results).Should(Receive(&result))
				Expect(result.State).To(Equal(indexer.StateCommitted))
			}
			Expect(recordsOf("a")).To(HaveLen(2))
		})

		It("publishes an indexed event with the outcome", func() {
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.events).To(HaveLen(1))
			event := publisher.events[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeNodeIndexed))
			Expect(event.Node.ID).To(Equal("a"))
			Expect(event.Result.State).To(Equal(string(indexer.StateCommitted)))
			Expect(event.Result.Inserted).To(Equal(2))
		})

		It("does not fail the update when publishing fails", func() {
			publisher.err = errors.New("broker down")
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("UpdateNodeByID", func() {
		It("resolves the node through the source", func() {
			result, err := ix.UpdateNodeByID(ctx, "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Inserted).To(Equal(1))
		})

		It("reports unknown nodes before touching the store", func() {
			_, err := ix.UpdateNodeByID(ctx, "missing")
			Expect(err).To(MatchError(notes.ErrNodeNotFound))
			Expect(store.Clears()).To(BeEmpty())
		})
	})

	Describe("UpdateAll", func() {
		It("updates every node and reports progress", func() {
			var seen []int
			summary, err := ix.UpdateAll(ctx, func(done, total int, _ *indexer.NodeResult) {
				Expect(total).To(Equal(2))
				seen = append(seen, done)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Nodes).To(Equal(2))
			Expect(summary.Committed).To(Equal(2))
			Expect(summary.Records).To(Equal(3))
			Expect(seen).To(Equal([]int{1, 2}))
		})

		It("continues past a failed node", func() {
			embedder.FailOn["Hello world."] = true
			embedder.FailOn["Goodbye."] = true

			summary, err := ix.UpdateAll(ctx, nil)
			Expect(err).To(MatchError(vector.ErrProvider))
			Expect(err.Error()).To(ContainSubstring("node a"))
			Expect(summary.Failed).To(Equal(1))
			Expect(summary.Committed).To(Equal(1))
			Expect(recordsOf("b")).To(HaveLen(1))
		})

		It("stops before the next node once cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			summary, err := ix.UpdateAll(cancelled, nil)
			Expect(err).To(MatchError(context.Canceled))
			Expect(summary.Results).To(BeEmpty())
		})
	})

	Describe("ClearNode", func() {
		It("removes the node's records and publishes an event", func() {
			_, err := ix.UpdateNode(ctx, nodeA())
			Expect(err).NotTo(HaveOccurred())

			Expect(ix.ClearNode(ctx, "a")).To(Succeed())
			Expect(recordsOf("a")).To(BeEmpty())
			Expect(publisher.types()).To(Equal([]string{
				eventstream.EventTypeNodeIndexed,
				eventstream.EventTypeNodeCleared,
			}))
		})

		It("waits for a running update of the node", func() {
			embedder.Gate = make(chan struct{})
			updated := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				_, _ = ix.UpdateNode(ctx, nodeA())
				close(updated)
			}()
			Eventually(embedder.Calls).Should(HaveLen(2))

			cleared := make(chan error, 1)
			go func() {
				cleared <- ix.ClearNode(ctx, "a")
			}()
			Consistently(cleared, 100*time.Millisecond).ShouldNot(Receive())

			close(embedder.Gate)
			Eventually(updated).Should(BeClosed())
			Eventually(cleared).Should(Receive(BeNil()))
			Expect(recordsOf("a")).To(BeEmpty())
		})

		It("is a no-op for a node without records", func() {
			Expect(ix.ClearNode(ctx, "never-indexed")).To(Succeed())
		})

		It("requires an id", func() {
			Expect(ix.ClearNode(ctx, "")).To(MatchError(vector.ErrConfiguration))
		})
	})

	Describe("ClearDB", func() {
		BeforeEach(func() {
			_, err := ix.UpdateAll(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses without confirmation and changes nothing", func() {
			Expect(ix.ClearDB(ctx, false)).To(MatchError(indexer.ErrConfirmationRequired))

			stats, err := ix.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeEquivalentTo(3))
		})

		It("drops everything when confirmed", func() {
			Expect(ix.ClearDB(ctx, true)).To(Succeed())

			stats, err := ix.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeZero())
			Expect(stats.Dimensions).To(BeEquivalentTo(dims))
			Expect(publisher.types()).To(ContainElement(eventstream.EventTypeStoreReset))
		})
	})
})
