package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/voicekb/internal/catalog"
	"github.com/bull/voicekb/internal/retrieval"
)

// SearchInput defines the input parameters for the kb_search tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query"`
	// K is the maximum number of excerpts to return.
	K int `json:"k,omitempty" jsonschema:"minimum=1,maximum=10,default=3,description=Maximum number of excerpts to return"`
}

// SearchOutput contains the search results.
type SearchOutput struct {
	Results []retrieval.Result `json:"results"`
	Message string             `json:"message,omitempty"`
}

func makeSearchHandler(service *retrieval.Service, userID string) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		results, err := service.Search(ctx, userID, input.Query, input.K)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}
		if len(results) == 0 {
			return nil, SearchOutput{
				Results: []retrieval.Result{},
				Message: "No matching excerpts found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// ListInput defines the input parameters for the list_documents tool; it
// takes none.
type ListInput struct{}

// ListOutput contains the indexed filenames.
type ListOutput struct {
	Filenames []string `json:"filenames"`
	Count     int      `json:"count"`
}

func makeListHandler(cat *catalog.Catalog, userID string) func(
	context.Context, *mcp.CallToolRequest, ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListInput) (
		*mcp.CallToolResult, ListOutput, error,
	) {
		docs, err := cat.ListByUser(ctx, userID)
		if err != nil {
			return nil, ListOutput{}, fmt.Errorf("list failed: %w", err)
		}
		filenames := make([]string, 0, len(docs))
		for _, doc := range docs {
			if doc.Status == catalog.StatusIndexed {
				filenames = append(filenames, doc.Filename)
			}
		}
		return nil, ListOutput{Filenames: filenames, Count: len(filenames)}, nil
	}
}
