package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/search"
)

// AddSearchRegexTool registers search_regex with an MCP server.
func AddSearchRegexTool(s *server.MCPServer, svc *search.Service, log *zap.Logger) {
	tool := mcp.NewTool(
		"search_regex",
		mcp.WithDescription("Search chunk code by regular expression (RE2 syntax: full alternation and character classes, no backreferences)."),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("Regular expression to match against chunk code")),
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
	s.AddTool(tool, createSearchRegexHandler(svc, log))
}

func createSearchRegexHandler(svc *search.Service, log *zap.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		argsMap, errResult := parseToolArguments(request)
		if errResult != nil {
			return errResult, nil
		}

		pattern, err := parseStringArg(argsMap, "pattern", true)
		if err != nil {
			return errorResult(KindInvalidArgument, err.Error(), false), nil
		}

		req := search.RegexRequest{
			Pattern:          pattern,
			PageSize:         parseIntArg(argsMap, "page_size", 0),
			Offset:           parseIntArg(argsMap, "offset", 0),
			MaxResponseBytes: parseIntArg(argsMap, "max_response_bytes", 0),
			Filters: search.Filters{
				Language:   parseStringArgOrEmpty(argsMap, "language"),
				PathPrefix: parseStringArgOrEmpty(argsMap, "path_prefix"),
			},
		}

		resp, err := svc.Regex(req)
		if err != nil {
			log.Warn("search_regex failed", zap.String("pattern", pattern), zap.Error(err))
			return errorResult(KindInvalidArgument, err.Error(), false), nil
		}

		return marshalToolResponse(toResponseBody(resp))
	}
}

func parseStringArgOrEmpty(argsMap map[string]interface{}, key string) string {
	v, _ := parseStringArg(argsMap, key, false)
	return v
}
