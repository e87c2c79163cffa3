package vector_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/vector"
)

var _ = Describe("CheckDimensions", func() {
	It("accepts a vector of the configured width", func() {
		Expect(vector.CheckDimensions([]float32{1, 2, 3}, 3)).To(Succeed())
	})

	It("rejects shorter and longer vectors", func() {
		for _, v := range [][]float32{{1, 2}, {1, 2, 3, 4}} {
			err := vector.CheckDimensions(v, 3)
			Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())
			Expect(errors.Is(err, vector.ErrConfiguration)).To(BeTrue())
		}
	})
})

var _ = Describe("StorageError", func() {
	It("is a storage error that keeps its cause", func() {
		cause := errors.New("disk full")
		err := vector.StorageError("inserting span", cause)

		Expect(errors.Is(err, vector.ErrStorage)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("inserting span"))
	})
})
