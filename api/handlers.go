package api

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NodeResponse reports a single node update. Error is set when some or all
// spans failed; the spans that committed stay stored.
type NodeResponse struct {
	Result *indexer.NodeResult `json:"result"`
	Error  string              `json:"error,omitempty"`
}

// UpdateAllResponse reports a bulk update.
type UpdateAllResponse struct {
	Summary *indexer.Summary `json:"summary"`
	Error   string           `json:"error,omitempty"`
}

// ClearResponse acknowledges a clear operation.
type ClearResponse struct {
	NodeID  string `json:"node_id,omitempty"`
	Cleared bool   `json:"cleared"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, notes.ErrNodeNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, indexer.ErrConfirmationRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, vector.ErrProvider):
		return fiber.StatusBadGateway
	case errors.Is(err, vector.ErrStorage):
		return fiber.StatusInternalServerError
	case errors.Is(err, vector.ErrConfiguration):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(ErrorResponse{Error: err.Error()})
}

// nodeID returns the :id parameter. Node ids may be paths, so clients escape
// slashes as %2F.
func nodeID(c *fiber.Ctx) (string, error) {
	id, err := url.PathUnescape(c.Params("id"))
	if err != nil || id == "" {
		return "", errors.New("invalid node id")
	}
	return id, nil
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleSearch handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional): number of results to return
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 0
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	output, err := s.searcher.Search(c.UserContext(), query, topK)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(output)
}

// handleStats returns the store contents summary.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.indexer.Stats(c.UserContext())
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(stats)
}

// handleUpdateNode re-indexes one node.
func (s *Server) handleUpdateNode(c *fiber.Ctx) error {
	id, err := nodeID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	result, err := s.indexer.UpdateNodeByID(c.UserContext(), id)
	if result == nil {
		return errorJSON(c, err)
	}
	if err != nil {
		return c.Status(statusFor(err)).JSON(NodeResponse{Result: result, Error: err.Error()})
	}

	return c.JSON(NodeResponse{Result: result})
}

// handleClearNode removes a node's embeddings.
func (s *Server) handleClearNode(c *fiber.Ctx) error {
	id, err := nodeID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	if err := s.indexer.ClearNode(c.UserContext(), id); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(ClearResponse{NodeID: id, Cleared: true})
}

// handleUpdateAll re-indexes every node. Failed nodes do not stop the run;
// the response is 207 when any node failed.
func (s *Server) handleUpdateAll(c *fiber.Ctx) error {
	summary, err := s.indexer.UpdateAll(c.UserContext(), nil)
	if summary == nil {
		return errorJSON(c, err)
	}
	if err != nil {
		return c.Status(fiber.StatusMultiStatus).JSON(UpdateAllResponse{Summary: summary, Error: err.Error()})
	}

	return c.JSON(UpdateAllResponse{Summary: summary})
}

// handleClearDB drops every embedding. Requires ?confirm=true.
func (s *Server) handleClearDB(c *fiber.Ctx) error {
	if err := s.indexer.ClearDB(c.UserContext(), c.QueryBool("confirm")); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(ClearResponse{Cleared: true})
}
