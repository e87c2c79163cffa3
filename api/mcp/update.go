package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	updateNodeToolName    = "update_node"
	updateNodeDescription = "Re-index one note by id after its content changed. Replaces the note's embeddings and reports how many passages were stored."
)

// UpdateNodeInput represents the input arguments for the update_node tool.
type UpdateNodeInput struct {
	NodeID string `json:"node_id" jsonschema:"id of the note to re-index"`
}

// UpdateNodeOutput reports the outcome of the update.
type UpdateNodeOutput struct {
	NodeID   string `json:"node_id"`
	State    string `json:"state"`
	Spans    int    `json:"spans"`
	Inserted int    `json:"inserted"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleUpdateNode(ctx context.Context, _ *mcp.CallToolRequest, input UpdateNodeInput) (*mcp.CallToolResult, UpdateNodeOutput, error) {
	result, err := s.config.Updater.UpdateNodeByID(ctx, input.NodeID)
	if result == nil {
		s.config.Logger.Error("MCP update failed", "node_id", input.NodeID, "error", err)
		return nil, UpdateNodeOutput{}, fmt.Errorf("update failed: %w", err)
	}

	output := UpdateNodeOutput{
		NodeID:   result.NodeID,
		State:    string(result.State),
		Spans:    result.Spans,
		Inserted: result.Inserted,
		Failed:   result.Failed,
	}
	if err != nil {
		output.Error = err.Error()
	}

	text := fmt.Sprintf("%s: %s, %d of %d passages stored", output.NodeID, output.State, output.Inserted, output.Spans)
	return &mcp.CallToolResult{
		IsError: err != nil,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, output, nil
}
