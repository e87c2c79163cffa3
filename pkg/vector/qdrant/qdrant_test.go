package qdrant_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/vector"
	"github.com/papercomputeco/notevec/pkg/vector/qdrant"
	"github.com/papercomputeco/notevec/pkg/vector/storetest"
)

// target is a Qdrant gRPC address such as localhost:6334.
var target = os.Getenv("NOTEVEC_TEST_QDRANT")

var _ = Describe("NewStore", func() {
	It("requires a target", func() {
		_, err := qdrant.NewStore(qdrant.Config{Dimensions: 3}, logger.Nop())
		Expect(err).To(MatchError(vector.ErrConfiguration))
	})

	It("requires dimensions", func() {
		_, err := qdrant.NewStore(qdrant.Config{Target: "localhost"}, logger.Nop())
		Expect(err).To(MatchError(vector.ErrConfiguration))
	})

	It("rejects a malformed port", func() {
		_, err := qdrant.NewStore(qdrant.Config{Target: "localhost:grpc", Dimensions: 3}, logger.Nop())
		Expect(err).To(MatchError(vector.ErrConfiguration))
	})

	It("closes a store that never connected", func() {
		s, err := qdrant.NewStore(qdrant.Config{Target: "localhost", Dimensions: 3}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())
	})
})

var _ = storetest.DescribeStore("qdrant", func(ctx context.Context) vector.Store {
	if target == "" {
		Skip("NOTEVEC_TEST_QDRANT is not set")
	}
	s, err := qdrant.NewStore(qdrant.Config{
		Target:         target,
		CollectionName: "notevec_test",
		Dimensions:     storetest.Dimensions,
	}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return s
})

var _ = storetest.DescribeSharedStore("qdrant", func(context.Context) (vector.Store, vector.Store) {
	if target == "" {
		Skip("NOTEVEC_TEST_QDRANT is not set")
	}
	open := func() vector.Store {
		s, err := qdrant.NewStore(qdrant.Config{
			Target:         target,
			CollectionName: "notevec_test_shared",
			Dimensions:     storetest.Dimensions,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return s
	}
	return open(), open()
})
