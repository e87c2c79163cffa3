// Package storetest holds the behavior every vector.Store backend shares,
// written as ginkgo specs so backend suites can run it against a live store.
package storetest

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/vector"
)

// Dimensions is the vector width the contract specs insert.
const Dimensions = 3

// DescribeStore registers the shared store specs. newStore must return an
// empty store configured for Dimensions; the caller is responsible for
// skipping when the backing service is unavailable.
func DescribeStore(name string, newStore func(ctx context.Context) vector.Store) bool {
	return Describe(name+" store contract", func() {
		var (
			ctx   context.Context
			store vector.Store
		)

		BeforeEach(func() {
			ctx = context.Background()
			store = newStore(ctx)
			Expect(store.DropAll(ctx)).To(Succeed())
			DeferCleanup(func() {
				Expect(store.Close()).To(Succeed())
			})
		})

		It("is idempotent in EnsureSchema", func() {
			Expect(store.EnsureSchema(ctx)).To(Succeed())
			Expect(store.EnsureSchema(ctx)).To(Succeed())
		})

		It("returns the exact vector first at distance zero", func() {
			_, err := store.Insert(ctx, "a", vector.Span{Start: 0, End: 12}, []float32{1, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			id, err := store.Insert(ctx, "b", vector.Span{Start: 14, End: 22}, []float32{0, 1, 0})
			Expect(err).NotTo(HaveOccurred())

			matches, err := store.Query(ctx, []float32{0, 1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(2))
			Expect(matches[0].ID).To(Equal(id))
			Expect(matches[0].NodeID).To(Equal("b"))
			Expect(matches[0].Span).To(Equal(vector.Span{Start: 14, End: 22}))
			Expect(matches[0].Distance).To(BeNumerically("~", 0, 1e-6))
		})

		It("allocates increasing record ids", func() {
			first, err := store.Insert(ctx, "a", vector.Span{}, []float32{1, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Insert(ctx, "a", vector.Span{}, []float32{0, 1, 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeNumerically(">", first))
		})

		It("rejects vectors of the wrong width", func() {
			_, err := store.Insert(ctx, "a", vector.Span{}, []float32{1, 0})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			records, err := store.Records(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())
		})

		It("clears one node and leaves the others", func() {
			_, err := store.Insert(ctx, "a", vector.Span{Start: 0, End: 1}, []float32{1, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Insert(ctx, "b", vector.Span{Start: 0, End: 1}, []float32{0, 0, 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Clear(ctx, "a")).To(Succeed())
			Expect(store.Clear(ctx, "never-indexed")).To(Succeed())

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeEquivalentTo(1))
			Expect(stats.Nodes).To(BeEquivalentTo(1))
		})

		It("returns an empty result for an empty store", func() {
			matches, err := store.Query(ctx, []float32{1, 0, 0}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).NotTo(BeNil())
			Expect(matches).To(BeEmpty())
		})
	})
}

// DescribeSharedStore registers specs for two store instances writing to the
// same backing storage, as two notevec processes do. newStores must return
// both instances configured for Dimensions.
func DescribeSharedStore(name string, newStores func(ctx context.Context) (vector.Store, vector.Store)) bool {
	return Describe(name+" store shared by two writers", func() {
		var (
			ctx         context.Context
			first, next vector.Store
		)

		BeforeEach(func() {
			ctx = context.Background()
			first, next = newStores(ctx)
			Expect(first.DropAll(ctx)).To(Succeed())
			Expect(next.EnsureSchema(ctx)).To(Succeed())
			DeferCleanup(func() {
				Expect(first.Close()).To(Succeed())
				Expect(next.Close()).To(Succeed())
			})
		})

		It("never hands out the same record id twice", func() {
			x, err := first.Insert(ctx, "x", vector.Span{Start: 0, End: 5}, []float32{1, 0, 0})
			Expect(err).NotTo(HaveOccurred())
			y, err := next.Insert(ctx, "y", vector.Span{Start: 6, End: 9}, []float32{0, 1, 0})
			Expect(err).NotTo(HaveOccurred())
			Expect(y).NotTo(Equal(x))

			xs, err := next.Records(ctx, "x")
			Expect(err).NotTo(HaveOccurred())
			Expect(xs).To(ConsistOf(vector.Record{ID: x, NodeID: "x", Span: vector.Span{Start: 0, End: 5}}))

			ys, err := first.Records(ctx, "y")
			Expect(err).NotTo(HaveOccurred())
			Expect(ys).To(ConsistOf(vector.Record{ID: y, NodeID: "y", Span: vector.Span{Start: 6, End: 9}}))

			stats, err := first.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeEquivalentTo(2))
		})
	})
}
