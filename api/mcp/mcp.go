// Package mcp provides an MCP (Model Context Protocol) server exposing note
// search and node re-indexing as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/notevec/api/search"
	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/utils"
)

// NodeUpdater re-indexes a node by id. *indexer.Indexer implements it.
type NodeUpdater interface {
	UpdateNodeByID(ctx context.Context, id string) (*indexer.NodeResult, error)
}

type Config struct {
	// Searcher answers the search tool.
	Searcher *search.Searcher

	// Updater answers the update_node tool.
	Updater NodeUpdater

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the search and update_node tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "notevec",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Searcher == nil {
			return nil, errors.New("searcher is required")
		}
		if c.Updater == nil {
			return nil, errors.New("node updater is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        updateNodeToolName,
			Description: updateNodeDescription,
		}, s.handleUpdateNode)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, e.g. to connect it to another
// transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
