package sqlitevec_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/vector"
	"github.com/papercomputeco/notevec/pkg/vector/sqlitevec"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *sqlitevec.Store
	)

	newMemoryStore := func(dims uint) *sqlitevec.Store {
		s, err := sqlitevec.NewStore(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: dims,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewStore", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: "", Dimensions: 4}, logger.Nop())
			Expect(err).To(MatchError(vector.ErrConfiguration))
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(MatchError(vector.ErrConfiguration))
		})

		It("should not open a connection until first use", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "lazy.db")

			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path, Dimensions: 4}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())

			Expect(s.EnsureSchema(ctx)).To(Succeed())
			_, err = os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())
		})

		It("should close cleanly when never used", func() {
			Expect(newMemoryStore(4).Close()).To(Succeed())
		})
	})

	Describe("EnsureSchema", func() {
		BeforeEach(func() {
			store = newMemoryStore(4)
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		It("creates the span registry, its node index and the vector table", func() {
			Expect(store.EnsureSchema(ctx)).To(Succeed())

			names, err := store.SchemaObjects(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ContainElements("nv_spans", "nv_spans_node_id", "nv_embeddings"))
		})

		It("is idempotent", func() {
			Expect(store.EnsureSchema(ctx)).To(Succeed())
			_, err := store.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{1, 0, 0, 0})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.EnsureSchema(ctx)).To(Succeed())

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(Equal(int64(1)))
		})
	})

	Describe("dimension changes", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "dims.db")

			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path, Dimensions: 4}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{1, 2, 3, 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())
		})

		It("fails loudly when the existing store has a different width", func() {
			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path, Dimensions: 3}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			err = s.EnsureSchema(ctx)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			Expect(err).To(MatchError(vector.ErrConfiguration))
		})

		It("rebuilds the store at the new width after DropAll", func() {
			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path, Dimensions: 3}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			Expect(s.DropAll(ctx)).To(Succeed())

			_, err = s.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{1, 2, 3})
			Expect(err).NotTo(HaveOccurred())

			stats, err := s.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(Equal(int64(1)))
			Expect(stats.Dimensions).To(Equal(uint(3)))
		})

		It("reopens a store with the same width", func() {
			s, err := sqlitevec.NewStore(sqlitevec.Config{DBPath: path, Dimensions: 4}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			defer s.Close()

			records, err := s.Records(ctx, "node-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})

	Describe("Insert", func() {
		BeforeEach(func() {
			store = newMemoryStore(4)
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		It("allocates increasing record ids", func() {
			first, err := store.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{0.1, 0.1, 0.1, 0.1})
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Insert(ctx, "node-a", vector.Span{Start: 7, End: 12}, []float32{0.2, 0.2, 0.2, 0.2})
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(BeNumerically(">", first))
		})

		It("stores the span and the vector under the same key", func() {
			id, err := store.Insert(ctx, "node-a", vector.Span{Start: 3, End: 9}, []float32{0.1, 0.2, 0.3, 0.4})
			Expect(err).NotTo(HaveOccurred())

			records, err := store.Records(ctx, "node-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(ConsistOf(vector.Record{
				ID:     id,
				NodeID: "node-a",
				Span:   vector.Span{Start: 3, End: 9},
			}))

			emb, err := store.Embedding(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(emb).To(HaveLen(4))
			Expect(emb[0]).To(BeNumerically("~", 0.1, 0.001))
			Expect(emb[3]).To(BeNumerically("~", 0.4, 0.001))
		})

		It("rejects vectors of the wrong width", func() {
			_, err := store.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{0.1, 0.2, 0.3})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			_, err = store.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{0.1, 0.2, 0.3, 0.4, 0.5})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeZero())
		})

		It("rejects an empty node id", func() {
			_, err := store.Insert(ctx, "", vector.Span{}, []float32{1, 2, 3, 4})
			Expect(err).To(MatchError(vector.ErrConfiguration))
		})

		It("leaves neither row visible when the vector write fails", func() {
			_, err := store.InsertUnchecked(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{0.1, 0.2})
			Expect(err).To(MatchError(vector.ErrStorage))

			records, err := store.Records(ctx, "node-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())

			results, err := store.Query(ctx, []float32{0.1, 0.2, 0, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Query", func() {
		var ids []int64

		BeforeEach(func() {
			store = newMemoryStore(4)
			ids = nil

			for i, emb := range [][]float32{
				{0.1, 0.1, 0.1, 0.1},
				{0.2, 0.2, 0.2, 0.2},
				{0.3, 0.3, 0.3, 0.3},
				{0.4, 0.4, 0.4, 0.4},
				{0.5, 0.5, 0.5, 0.5},
			} {
				id, err := store.Insert(ctx, "node-a", vector.Span{Start: i * 10, End: i*10 + 5}, emb)
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, id)
			}
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		It("returns an exact match first with zero distance", func() {
			results, err := store.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			Expect(results[0].ID).To(Equal(ids[2]))
			Expect(results[0].NodeID).To(Equal("node-a"))
			Expect(results[0].Span).To(Equal(vector.Span{Start: 20, End: 25}))
			Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-6))
		})

		It("respects topK", func() {
			results, err := store.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("defaults topK when zero or negative", func() {
			results, err := store.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))
		})

		It("orders results by ascending distance", func() {
			results, err := store.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(5))

			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Distance).To(BeNumerically("<=", results[i].Distance))
			}
		})

		It("rejects a query vector of the wrong width", func() {
			_, err := store.Query(ctx, []float32{0.3, 0.3}, 5)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("returns an empty slice for an empty store", func() {
			empty := newMemoryStore(4)
			defer empty.Close()

			results, err := empty.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeNil())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Clear", func() {
		BeforeEach(func() {
			store = newMemoryStore(4)

			for _, node := range []string{"node-a", "node-a", "node-b"} {
				_, err := store.Insert(ctx, node, vector.Span{Start: 0, End: 5}, []float32{0.1, 0.1, 0.1, 0.1})
				Expect(err).NotTo(HaveOccurred())
			}
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		It("removes all records of the node and their vectors", func() {
			Expect(store.Clear(ctx, "node-a")).To(Succeed())

			records, err := store.Records(ctx, "node-a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(BeEmpty())

			results, err := store.Query(ctx, []float32{0.1, 0.1, 0.1, 0.1}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].NodeID).To(Equal("node-b"))
		})

		It("is a no-op for a node without records", func() {
			Expect(store.Clear(ctx, "missing")).To(Succeed())
			Expect(store.Clear(ctx, "missing")).To(Succeed())

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(Equal(int64(3)))
			Expect(stats.Nodes).To(Equal(int64(2)))
		})
	})

	Describe("DropAll", func() {
		BeforeEach(func() {
			store = newMemoryStore(4)
			_, err := store.Insert(ctx, "node-a", vector.Span{Start: 0, End: 5}, []float32{0.1, 0.1, 0.1, 0.1})
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		It("removes everything and leaves the store usable", func() {
			Expect(store.DropAll(ctx)).To(Succeed())

			stats, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Records).To(BeZero())

			_, err = store.Insert(ctx, "node-b", vector.Span{Start: 0, End: 5}, []float32{0.2, 0.2, 0.2, 0.2})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Store", func() {
			var _ vector.Store = (*sqlitevec.Store)(nil)
		})
	})
})
