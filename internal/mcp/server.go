package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/search"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// Server manages the stdio tool-protocol server lifecycle: registers
// search_regex, search_semantic, get_stats, and health_check, then serves
// them over stdio until the process is asked to shut down.
type Server struct {
	log *zap.Logger
	mcp *server.MCPServer
}

// NewServer builds a Server exposing the four tools named in spec §6,
// wired to the given Search Service and Indexing Coordinator.
func NewServer(log *zap.Logger, store *storage.ChunkStore, coord *indexer.Coordinator, svc *search.Service, defaultProvider string) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		"codesearchd",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	AddSearchRegexTool(mcpServer, svc, log)
	AddSearchSemanticTool(mcpServer, svc, defaultProvider, log)
	AddGetStatsTool(mcpServer, store, coord, log)
	AddHealthCheckTool(mcpServer, store, coord, log)

	return &Server{log: log, mcp: mcpServer}
}

// Serve starts the MCP server on stdio and blocks until ctx is cancelled or
// a termination signal arrives.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting MCP server on stdio")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("mcp server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-sigCh:
		s.log.Info("received shutdown signal, stopping")
		cancel()
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
