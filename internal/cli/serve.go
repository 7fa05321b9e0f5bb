package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/embedding"
	"github.com/codesearchd/codesearchd/internal/httpapi"
	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/logging"
	"github.com/codesearchd/codesearchd/internal/mcp"
	"github.com/codesearchd/codesearchd/internal/parser"
	"github.com/codesearchd/codesearchd/internal/queue"
	"github.com/codesearchd/codesearchd/internal/search"
	"github.com/codesearchd/codesearchd/internal/storage"
	"github.com/codesearchd/codesearchd/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch, index, and serve search over stdio (and HTTP if enabled)",
	Long: `serve runs the full pipeline in one process: an initial scan, a live
file watcher feeding the Indexing Coordinator, the Embedding Orchestrator
picking up newly added chunks, and the search tool protocol on stdio —
plus an optional HTTP surface when http.enabled is set.

It blocks until interrupted (SIGINT/SIGTERM).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot()
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("resolve project root: %w", err))
	}

	cfg, err := config.LoadFromDir(root)
	if err != nil {
		return withExitCode(exitInvalidConfig, fmt.Errorf("load configuration: %w", err))
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return withExitCode(exitInvalidConfig, fmt.Errorf("build logger: %w", err))
	}
	defer log.Sync()

	dbPath := cfg.DB.Path
	if !filepathAbs(dbPath) {
		dbPath = joinPath(root, dbPath)
	}
	if err := ensureParentDir(dbPath); err != nil {
		return withExitCode(exitMissingPrereq, fmt.Errorf("prepare database directory: %w", err))
	}
	cfg.Watch.Exclude = withDBExclude(cfg.Watch.Exclude, root, dbPath)

	store, err := storage.Open(dbPath)
	if err != nil {
		return withExitCode(exitMissingPrereq, fmt.Errorf("open chunk store: %w", err))
	}
	defer store.Close()

	embedOrch := embedding.New(log, store, cfg.Embedding)

	registry := parser.NewDefaultRegistry()
	queueMetrics := queue.NewMetrics(prometheus.DefaultRegisterer)

	coord, err := indexer.New(log, store, registry, root, cfg.Watch, cfg.Index, queueMetrics,
		func(path string, chunkIDs []int64) {
			embedOrch.EnqueueChunkIDs(cfg.Embedding.DefaultProvider, chunkIDs)
		})
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("build indexing coordinator: %w", err))
	}

	log.Info("running initial scan", zap.String("root", root))
	if err := coord.InitialScan(); err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("initial scan: %w", err))
	}

	fw, err := watcher.New(log, []string{root}, cfg.Watch.Include, cfg.Watch.Exclude)
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("build file watcher: %w", err))
	}
	watcher.WithDebounce(fw, cfg.Watch.Debounce())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fw.Start(ctx, func(evt watcher.Event) { coord.Enqueue(evt) }); err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("start file watcher: %w", err))
	}
	defer fw.Stop()

	go coord.Run(ctx)

	svc := search.New(store, embedOrch, cfg.Search)
	mcpServer := mcp.NewServer(log, store, coord, svc, cfg.Embedding.DefaultProvider)

	errCh := make(chan error, 2)
	go func() {
		errCh <- mcpServer.Serve(ctx)
	}()

	if cfg.HTTP.Enabled {
		httpServer := httpapi.New(log, store, coord, svc, cfg.Embedding.DefaultProvider, cfg.HTTP)
		go func() {
			errCh <- httpServer.Serve(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		if err != nil {
			return withExitCode(exitRuntimeError, err)
		}
		return nil
	}
}
