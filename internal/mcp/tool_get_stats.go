package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// AddGetStatsTool registers get_stats: Chunk Store counts plus Task
// Coordinator health, per spec §6.
func AddGetStatsTool(s *server.MCPServer, store *storage.ChunkStore, coord *indexer.Coordinator, log *zap.Logger) {
	tool := mcp.NewTool(
		"get_stats",
		mcp.WithDescription("Return Chunk Store counts (files, chunks, embeddings by provider) plus indexing queue health."),
	)
	s.AddTool(tool, createGetStatsHandler(store, coord, log))
}

func createGetStatsHandler(store *storage.ChunkStore, coord *indexer.Coordinator, log *zap.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := store.Stats()
		if err != nil {
			log.Error("get_stats failed", zap.Error(err))
			return internalError("get_stats", err), nil
		}

		qs := coord.Stats()
		resp := statsResponse{
			FileCount:         stats.FileCount,
			ChunkCount:        stats.ChunkCount,
			ChunksByLanguage:  stats.ChunksByLanguage,
			EmbeddingsByTuple: stats.EmbeddingsByTuple,
			PendingEmbeddings: stats.PendingEmbeddings,
			Queue: queueStats{
				Queued:    qs.Queued,
				InFlight:  qs.InFlight,
				Completed: qs.Completed,
				Failed:    qs.Failed,
				LastError: qs.LastError,
				Running:   true,
			},
		}
		return marshalToolResponse(resp)
	}
}
