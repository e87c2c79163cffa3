package api

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/notevec/api/search"
	"github.com/papercomputeco/notevec/pkg/indexer"
)

// Server is the API server for updating and searching note embeddings.
type Server struct {
	config   Config
	indexer  *indexer.Indexer
	searcher *search.Searcher
	logger   *slog.Logger
	app      *fiber.App
}

// NewServer creates a new API server. The indexer and searcher are injected
// so the same store handle can be shared with a watcher in the same process.
func NewServer(config Config, ix *indexer.Indexer, searcher *search.Searcher, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		indexer:  ix,
		searcher: searcher,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/search", s.handleSearch)
	v1.Get("/stats", s.handleStats)
	v1.Post("/nodes/:id/embeddings", s.handleUpdateNode)
	v1.Delete("/nodes/:id/embeddings", s.handleClearNode)
	v1.Post("/embeddings/update-all", s.handleUpdateAll)
	v1.Delete("/embeddings", s.handleClearDB)

	if config.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCPHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
