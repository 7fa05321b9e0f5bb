package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/embedding"
	"github.com/codesearchd/codesearchd/internal/indexer"
	"github.com/codesearchd/codesearchd/internal/logging"
	"github.com/codesearchd/codesearchd/internal/parser"
	"github.com/codesearchd/codesearchd/internal/queue"
	"github.com/codesearchd/codesearchd/internal/storage"
)

var indexQuiet bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run a one-shot full scan of the project root, then exit",
	Long: `index walks the project root once, chunks and stores every matching
file, enqueues new chunks for embedding, and exits — it does not start the
file watcher or any server.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexQuiet, "quiet", false, "suppress the progress bar")
}

func runIndex(cmd *cobra.Command, args []string) error {
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

	var bar *progressbar.ProgressBar
	if !indexQuiet {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Indexing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files/s"),
		)
	}

	coord, err := indexer.New(log, store, registry, root, cfg.Watch, cfg.Index, queueMetrics,
		func(path string, chunkIDs []int64) {
			if bar != nil {
				bar.Add(1)
			}
			embedOrch.EnqueueChunkIDs(cfg.Embedding.DefaultProvider, chunkIDs)
		})
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("build indexing coordinator: %w", err))
	}

	if err := coord.InitialScan(); err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("initial scan: %w", err))
	}
	// InitialScan only enqueues; run the coordinator until every scanned
	// file has been processed, then stop it.
	pending := int64(coord.Stats().Queued)
	runCtx, stopRun := context.WithCancel(context.Background())
	go coord.Run(runCtx)
	for {
		s := coord.Stats()
		if s.Queued == 0 && !s.InFlight && s.Completed+s.Failed >= pending {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	stopRun()
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	stats, err := store.Stats()
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("read stats: %w", err))
	}
	fmt.Printf("Indexed %d files, %d chunks\n", stats.FileCount, stats.ChunkCount)
	return nil
}
