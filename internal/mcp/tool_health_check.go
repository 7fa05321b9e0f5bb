package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// AddHealthCheckTool registers health_check: a cheap liveness probe
// distinct from get_stats — it reports status, not full counts.
func AddHealthCheckTool(s *server.MCPServer, store *storage.ChunkStore, coord *indexer.Coordinator, log *zap.Logger) {
	tool := mcp.NewTool(
		"health_check",
		mcp.WithDescription("Report whether the Chunk Store is reachable and the indexing queue is healthy."),
	)
	s.AddTool(tool, createHealthCheckHandler(store, coord, log))
}

func createHealthCheckHandler(store *storage.ChunkStore, coord *indexer.Coordinator, log *zap.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := healthOK
		details := map[string]any{}

		if _, err := store.Stats(); err != nil {
			log.Error("health_check: chunk store unreachable", zap.Error(err))
			status = healthDown
			details["store_error"] = err.Error()
		}

		qs := coord.Stats()
		details["queue_queued"] = qs.Queued
		details["queue_failed"] = qs.Failed
		if status == healthOK && qs.Failed > 0 && qs.Queued > 0 {
			status = healthDegraded
		}

		return marshalToolResponse(healthResponse{Status: status, Details: details})
	}
}
