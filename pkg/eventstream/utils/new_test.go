package eventstreamutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/eventstream/kafka"
	"github.com/papercomputeco/notevec/pkg/eventstream/nop"
	eventstreamutils "github.com/papercomputeco/notevec/pkg/eventstream/utils"
	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/vector"
)

var _ = Describe("NewPublisher", func() {
	It("defaults to the nop publisher", func() {
		p, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("builds a kafka publisher without contacting the brokers", func() {
		p, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
			ProviderType: "kafka",
			Brokers:      []string{"localhost:9092"},
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(p.Close()).To(Succeed())
	})

	It("requires kafka brokers", func() {
		_, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
			ProviderType: "kafka",
			Logger:       logger.Nop(),
		})
		Expect(err).To(MatchError(vector.ErrConfiguration))
	})

	It("rejects unknown providers", func() {
		_, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{ProviderType: "nats"})
		Expect(err).To(MatchError(vector.ErrConfiguration))
	})
})
