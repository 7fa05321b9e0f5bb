package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/search"
)

// AddSearchSemanticTool registers search_semantic with an MCP server.
// defaultProvider is used when the caller omits "provider".
func AddSearchSemanticTool(s *server.MCPServer, svc *search.Service, defaultProvider string, log *zap.Logger) {
	tool := mcp.NewTool(
		"search_semantic",
		mcp.WithDescription("Search chunk code by meaning: embeds the query text and ranks chunks by vector distance."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or code query text")),
		mcp.WithString("provider",
			mcp.Description("Embedding provider name; defaults to the configured default provider")),
		mcp.WithString("language",
			mcp.Description("Restrict results to this language")),
		mcp.WithString("path_prefix",
			mcp.Description("Restrict results to paths starting with this prefix")),
		mcp.WithNumber("page_size",
			mcp.Description("Results per page, 1-100 (default 15)")),
		mcp.WithNumber("offset",
			mcp.Description("Result offset for pagination (default 0)")),
		mcp.WithNumber("max_response_bytes",
			mcp.Description("Per-call response size ceiling; never raises the configured default")),
	)
	s.AddTool(tool, createSearchSemanticHandler(svc, defaultProvider, log))
}

func createSearchSemanticHandler(svc *search.Service, defaultProvider string, log *zap.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}

		query, err := parseStringArg(argsMap, "query", true)
		if err != nil {
			return errorResult(KindInvalidArgument, err.Error(), false), nil
		}

		provider := parseStringArgOrEmpty(argsMap, "provider")
		if provider == "" {
			provider = defaultProvider
		}

		req := search.SemanticRequest{
			QueryText:        query,
			Provider:         provider,
			PageSize:         parseIntArg(argsMap, "page_size", 0),
			Offset:           parseIntArg(argsMap, "offset", 0),
			MaxResponseBytes: parseIntArg(argsMap, "max_response_bytes", 0),
			Filters: search.Filters{
				Language:   parseStringArgOrEmpty(argsMap, "language"),
				PathPrefix: parseStringArgOrEmpty(argsMap, "path_prefix"),
			},
		}

		resp, err := svc.Semantic(ctx, req)
		if err != nil {
			log.Warn("search_semantic failed", zap.String("provider", provider), zap.Error(err))
			return errorResult(KindUnavailable, err.Error(), true), nil
		}

		return marshalToolResponse(toResponseBody(resp))
	}
}
