// Package search runs similarity queries over the embedding store. It is used
// by the search command, the REST API endpoint and the MCP server tool.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/notevec/pkg/embeddings"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// QueryEmbedder turns query text into a vector. *embeddings.Gateway
// implements it.
type QueryEmbedder interface {
	Request(ctx context.Context, text string) *embeddings.Future
}

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResult is one matching span, resolved to its node.
type SearchResult struct {
	NodeID   string  `json:"node_id"`
	Path     string  `json:"path"`
	Title    string  `json:"title"`
	RecordID int64   `json:"record_id"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Distance float64 `json:"distance"`
	Snippet  string  `json:"snippet"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// Config holds the collaborators of a Searcher.
type Config struct {
	Gateway QueryEmbedder
	Store   vector.Store
	Source  notes.Source

	// TopK bounds the number of results when a request does not set one.
	// Defaults to vector.DefaultTopK.
	TopK int

	Logger *slog.Logger
}

// Searcher embeds queries and resolves the nearest spans to their nodes.
type Searcher struct {
	gateway QueryEmbedder
	store   vector.Store
	source  notes.Source
	topK    int
	logger  *slog.Logger
}

// NewSearcher validates c and returns a Searcher.
func NewSearcher(c Config) (*Searcher, error) {
	switch {
	case c.Gateway == nil:
		return nil, fmt.Errorf("%w: searcher requires an embedding gateway", vector.ErrConfiguration)
	case c.Store == nil:
		return nil, fmt.Errorf("%w: searcher requires a vector store", vector.ErrConfiguration)
	case c.Source == nil:
		return nil, fmt.Errorf("%w: searcher requires a note source", vector.ErrConfiguration)
	case c.Logger == nil:
		return nil, fmt.Errorf("%w: searcher requires a logger", vector.ErrConfiguration)
	}

	topK := c.TopK
	if topK <= 0 {
		topK = vector.DefaultTopK
	}

	return &Searcher{
		gateway: c.Gateway,
		store:   c.Store,
		source:  c.Source,
		topK:    topK,
		logger:  c.Logger,
	}, nil
}

// Search embeds query and returns up to topK spans ordered by ascending
// distance. A topK of zero uses the searcher's default. Matches whose node no
// longer exists are skipped. No matches is an empty result, not an error.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (*SearchOutput, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is empty", vector.ErrConfiguration)
	}
	if topK <= 0 {
		topK = s.topK
	}

	s.logger.Debug("search request", "query", query, "top_k", topK)

	r := s.gateway.Request(ctx, query).Wait(ctx)
	if r.Err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", r.Err)
	}

	matches, err := s.store.Query(ctx, r.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	resolved := map[string]*notes.Node{}
	for _, m := range matches {
		node, ok := resolved[m.NodeID]
		if !ok {
			node, err = s.source.Node(ctx, m.NodeID)
			switch {
			case errors.Is(err, notes.ErrNodeNotFound):
				s.logger.Warn("skipping match for missing node",
					"node_id", m.NodeID,
					"record_id", m.ID,
				)
			case err != nil:
				return nil, fmt.Errorf("resolving node %s: %w", m.NodeID, err)
			}
			resolved[m.NodeID] = node
		}
		if node == nil {
			continue
		}

		results = append(results, BuildSearchResult(m, node))
	}

	return &SearchOutput{
		Query:   query,
		Results: results,
		Count:   len(results),
	}, nil
}

// BuildSearchResult converts a store match and its node into a SearchResult.
func BuildSearchResult(m vector.Match, node *notes.Node) SearchResult {
	return SearchResult{
		NodeID:   node.ID,
		Path:     node.Path,
		Title:    node.Title,
		RecordID: m.ID,
		Start:    m.Span.Start,
		End:      m.Span.End,
		Distance: m.Distance,
		Snippet:  strings.TrimSpace(node.Text(m.Span)),
	}
}
