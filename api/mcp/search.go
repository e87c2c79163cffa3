package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/notevec/api/search"
)

var (
	searchToolName    = "search"
	searchDescription = "Semantic search over the indexed notes. Returns the most similar note passages, nearest first, with the id, path and title of the note each passage belongs to."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query text"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 20)"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, search.SearchOutput, error) {
	logger := s.config.Logger
	logger.Debug("MCP search request", "query", input.Query, "top_k", input.TopK)

	output, err := s.config.Searcher.Search(ctx, input.Query, input.TopK)
	if err != nil {
		logger.Error("MCP search failed", "error", err)
		return nil, search.SearchOutput{}, fmt.Errorf("search failed: %w", err)
	}

	// Tools returning structured content also return it serialized as
	// text for clients that only read the content blocks.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return nil, search.SearchOutput{}, fmt.Errorf("serializing results: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, *output, nil
}
