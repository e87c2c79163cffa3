package mcp_test

import (
	"context"
	"encoding/json"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/api/mcp"
	"github.com/papercomputeco/notevec/api/search"
	"github.com/papercomputeco/notevec/pkg/embeddings"
	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/segment"
	testutils "github.com/papercomputeco/notevec/pkg/utils/test"
)

const dims = 8

var _ = Describe("MCP Server", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		store    *testutils.MockStore
		source   *notes.MemorySource
		ix       *indexer.Indexer
		searcher *search.Searcher
		session  *gomcp.ClientSession
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder(dims)
		store = testutils.NewMockStore(dims)
		source = notes.NewMemorySource(
			testutils.NewTestNode("a", "Hello world.\n\nGoodbye."),
			testutils.NewTestNode("b", "Only paragraph."),
		)
		gateway := embeddings.NewGateway(embedder, embeddings.GatewayConfig{}, logger.Nop())

		var err error
		ix, err = indexer.New(indexer.Config{
			Store:     store,
			Gateway:   gateway,
			Segmenter: segment.Paragraph{},
			Source:    source,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		searcher, err = search.NewSearcher(search.Config{
			Gateway: gateway,
			Store:   store,
			Source:  source,
			Logger:  logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err := mcp.NewServer(mcp.Config{
			Searcher: searcher,
			Updater:  ix,
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Handler()).NotTo(BeNil())

		serverTransport, clientTransport := gomcp.NewInMemoryTransports()
		serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(serverSession.Close)

		client := gomcp.NewClient(&gomcp.Implementation{Name: "test"}, nil)
		session, err = client.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(session.Close)
	})

	textOf := func(res *gomcp.CallToolResult) string {
		Expect(res.Content).NotTo(BeEmpty())
		text, ok := res.Content[0].(*gomcp.TextContent)
		Expect(ok).To(BeTrue())
		return text.Text
	}

	Describe("NewServer", func() {
		It("requires a searcher", func() {
			_, err := mcp.NewServer(mcp.Config{Updater: ix, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("searcher is required")))
		})

		It("requires a node updater", func() {
			_, err := mcp.NewServer(mcp.Config{Searcher: searcher, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("node updater is required")))
		})

		It("requires a logger", func() {
			_, err := mcp.NewServer(mcp.Config{Searcher: searcher, Updater: ix})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("builds an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	It("lists both tools", func() {
		res, err := session.ListTools(ctx, nil)
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		Expect(names).To(ConsistOf("search", "update_node"))
	})

	Describe("update_node", func() {
		It("indexes the node and reports the stored passages", func() {
			res, err := session.CallTool(ctx, &gomcp.CallToolParams{
				Name:      "update_node",
				Arguments: map[string]any{"node_id": "a"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(textOf(res)).To(Equal("a: committed, 2 of 2 passages stored"))

			records, err := store.Records(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
		})

		It("reports a missing node as a tool error", func() {
			res, err := session.CallTool(ctx, &gomcp.CallToolParams{
				Name:      "update_node",
				Arguments: map[string]any{"node_id": "missing"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("missing"))
		})

		It("reports partial failure as a tool error", func() {
			embedder.FailOn["Goodbye."] = true

			res, err := session.CallTool(ctx, &gomcp.CallToolParams{
				Name:      "update_node",
				Arguments: map[string]any{"node_id": "a"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(Equal("a: failed, 1 of 2 passages stored"))
		})
	})

	Describe("search", func() {
		BeforeEach(func() {
			_, err := ix.UpdateAll(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the nearest passages as JSON", func() {
			res, err := session.CallTool(ctx, &gomcp.CallToolParams{
				Name:      "search",
				Arguments: map[string]any{"query": "Goodbye.", "top_k": 2},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())

			var output search.SearchOutput
			Expect(json.Unmarshal([]byte(textOf(res)), &output)).To(Succeed())
			Expect(output.Query).To(Equal("Goodbye."))
			Expect(output.Count).To(Equal(2))
			Expect(output.Results[0].NodeID).To(Equal("a"))
			Expect(output.Results[0].Snippet).To(Equal("Goodbye."))
			Expect(output.Results[0].Distance).To(BeNumerically("~", 0, 1e-6))
		})

		It("reports an empty query as a tool error", func() {
			res, err := session.CallTool(ctx, &gomcp.CallToolParams{
				Name:      "search",
				Arguments: map[string]any{"query": "  "},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("search failed"))
		})
	})
})
