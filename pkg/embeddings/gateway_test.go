package embeddings_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/embeddings"
	"github.com/papercomputeco/notevec/pkg/logger"
	testutils "github.com/papercomputeco/notevec/pkg/utils/test"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// countingEmbedder tracks how many Embed calls run at once.
type countingEmbedder struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	c.calls.Add(1)
	n := c.running.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-c.release
	c.running.Add(-1)
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) Close() error { return nil }

var _ = Describe("Gateway", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		gateway  *embeddings.Gateway
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder(3)
		gateway = embeddings.NewGateway(embedder, embeddings.GatewayConfig{}, logger.Nop())
	})

	It("delivers the vector through the future", func() {
		embedder.Embeddings["hello"] = []float32{1, 0, 0}

		result := gateway.Request(ctx, "hello").Wait(ctx)
		Expect(result.Err).NotTo(HaveOccurred())
		Expect(result.Embedding).To(Equal([]float32{1, 0, 0}))
	})

	It("invokes the continuation exactly once", func() {
		var calls atomic.Int32
		var wg sync.WaitGroup
		wg.Add(1)
		gateway.RequestFunc(ctx, "text", func(r embeddings.Result) {
			defer wg.Done()
			calls.Add(1)
			Expect(r.Err).NotTo(HaveOccurred())
		})
		wg.Wait()
		Consistently(calls.Load, 50*time.Millisecond).Should(BeEquivalentTo(1))
	})

	It("returns before the backend answers", func() {
		embedder.Gate = make(chan struct{})
		future := gateway.Request(ctx, "slow")
		Consistently(future.Done(), 50*time.Millisecond).ShouldNot(BeClosed())

		close(embedder.Gate)
		Eventually(future.Done()).Should(BeClosed())
	})

	It("surfaces provider failures without retrying", func() {
		embedder.FailOn["bad"] = true

		_, err := gateway.Embed(ctx, "bad")
		Expect(err).To(MatchError(vector.ErrProvider))

		var perr *embeddings.ProviderError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Kind).To(Equal(embeddings.KindStatus))
		Expect(perr.Message).To(ContainSubstring("bad"))
		Expect(embedder.Calls()).To(Equal([]string{"bad"}))
	})

	It("treats an empty vector as a provider failure", func() {
		embedder.Embeddings["nothing"] = []float32{}

		_, err := gateway.Embed(ctx, "nothing")
		Expect(err).To(MatchError(vector.ErrProvider))
	})

	It("bounds the number of requests in flight", func() {
		counting := &countingEmbedder{release: make(chan struct{})}
		bounded := embeddings.NewGateway(counting, embeddings.GatewayConfig{MaxInFlight: 2}, logger.Nop())

		futures := make([]*embeddings.Future, 5)
		for i := range futures {
			futures[i] = bounded.Request(ctx, "x")
		}

		Eventually(counting.running.Load).Should(BeEquivalentTo(2))
		Consistently(counting.running.Load, 50*time.Millisecond).Should(BeEquivalentTo(2))

		close(counting.release)
		for _, f := range futures {
			Expect(f.Wait(ctx).Err).NotTo(HaveOccurred())
		}
		Expect(counting.peak.Load()).To(BeEquivalentTo(2))
		Expect(counting.calls.Load()).To(BeEquivalentTo(5))
	})

	It("fails queued requests whose context is cancelled", func() {
		counting := &countingEmbedder{release: make(chan struct{})}
		DeferCleanup(func() { close(counting.release) })
		bounded := embeddings.NewGateway(counting, embeddings.GatewayConfig{MaxInFlight: 1}, logger.Nop())

		bounded.Request(ctx, "occupies the slot")
		Eventually(counting.running.Load).Should(BeEquivalentTo(1))

		cancelled, cancel := context.WithCancel(ctx)
		queued := bounded.Request(cancelled, "queued")
		cancel()

		Eventually(queued.Done()).Should(BeClosed())
		result := queued.Wait(ctx)
		Expect(result.Err).To(MatchError(vector.ErrProvider))
		Expect(result.Err).To(MatchError(context.Canceled))
	})

	It("stops waiting when the caller's context ends", func() {
		embedder.Gate = make(chan struct{})
		DeferCleanup(func() { close(embedder.Gate) })

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		result := gateway.Request(ctx, "slow").Wait(waitCtx)
		Expect(result.Err).To(MatchError(context.DeadlineExceeded))
	})
})

var _ = Describe("ProviderError", func() {
	It("matches ErrProvider and its cause", func() {
		cause := errors.New("connection refused")
		err := &embeddings.ProviderError{Provider: "ollama", Kind: embeddings.KindTransport, Err: cause}

		Expect(err).To(MatchError(vector.ErrProvider))
		Expect(err).To(MatchError(cause))
		Expect(err.Error()).To(ContainSubstring("ollama transport failure"))
		Expect(err.Error()).To(ContainSubstring("connection refused"))
	})

	It("includes the status and backend message", func() {
		err := &embeddings.ProviderError{Provider: "openai", Kind: embeddings.KindStatus, Status: 429, Message: "quota exceeded"}
		Expect(err.Error()).To(ContainSubstring("status 429"))
		Expect(err.Error()).To(ContainSubstring("quota exceeded"))
		Expect(err).To(MatchError(vector.ErrProvider))
	})
})
