// Package mcptools exposes knowledge-base search to MCP clients. It is a
// second consumer of the retrieval layer next to the voice bridge, bound to
// one user at construction time.
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/retrieval"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies. UserID scopes every tool call; MCP
// clients are single-user desktop agents.
type Config struct {
	Retrieval *retrieval.Service
	Catalog   *catalog.Catalog
	UserID    string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "voicekb",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "kb_search",
		Description: "Search the user's private knowledge base semantically. Returns matching excerpts with filename and location citations.",
	}, makeSearchHandler(cfg.Retrieval, cfg.UserID))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the filenames currently indexed in the user's knowledge base.",
	}, makeListHandler(cfg.Catalog, cfg.UserID))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
