package embeddings

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/notevec/pkg/vector"
)

// DefaultMaxInFlight bounds concurrent backend requests when no limit is
// configured.
const DefaultMaxInFlight = 4

// Result is the outcome of one embedding request: a vector or an error.
type Result struct {
	Embedding []float32
	Err       error
}

// Future is a pending embedding request.
type Future struct {
	done   chan struct{}
	result Result
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the request completes or ctx is done. Abandoning a
// future does not cancel the underlying request.
func (f *Future) Wait(ctx context.Context) Result {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// GatewayConfig holds configuration for a Gateway.
type GatewayConfig struct {
	// MaxInFlight bounds the number of concurrent backend requests.
	// Defaults to DefaultMaxInFlight.
	MaxInFlight int64
}

// Gateway issues asynchronous embedding requests against an Embedder.
// Requests never block the caller; at most MaxInFlight of them reach the
// backend at once and completions arrive in no particular order. Failures
// are delivered, never retried.
type Gateway struct {
	embedder Embedder
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewGateway wraps embedder in a Gateway.
func NewGateway(embedder Embedder, c GatewayConfig, logger *slog.Logger) *Gateway {
	limit := c.MaxInFlight
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}

	return &Gateway{
		embedder: embedder,
		sem:      semaphore.NewWeighted(limit),
		logger:   logger,
	}
}

// RequestFunc starts an embedding request for text and returns immediately.
// fn is invoked exactly once, from another goroutine, with the result.
func (g *Gateway) RequestFunc(ctx context.Context, text string, fn func(Result)) {
	go func() {
		fn(g.embed(ctx, text))
	}()
}

// Request starts an embedding request for text and returns its Future.
func (g *Gateway) Request(ctx context.Context, text string) *Future {
	f := &Future{done: make(chan struct{})}
	g.RequestFunc(ctx, text, func(r Result) {
		f.result = r
		close(f.done)
	})
	return f
}

// Embed requests an embedding and waits for it.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	r := g.Request(ctx, text).Wait(ctx)
	return r.Embedding, r.Err
}

func (g *Gateway) embed(ctx context.Context, text string) Result {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Result{Err: fmt.Errorf("%w: waiting for a request slot: %w", vector.ErrProvider, err)}
	}
	defer g.sem.Release(1)

	embedding, err := g.embedder.Embed(ctx, text)
	if err != nil {
		g.logger.Debug("embedding request failed", "error", err)
		return Result{Err: err}
	}
	if len(embedding) == 0 {
		return Result{Err: &ProviderError{Provider: "gateway", Kind: KindEmpty, Message: "backend returned an empty vector"}}
	}

	return Result{Embedding: embedding}
}

// Close closes the underlying embedder.
func (g *Gateway) Close() error {
	return g.embedder.Close()
}
