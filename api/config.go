// Package api provides an HTTP API server for updating and querying note
// embeddings.
package api

import "net/http"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8091")
	ListenAddr string

	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
}
