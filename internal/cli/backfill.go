package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/embedding"
	"github.com/codesearchd/codesearchd/internal/logging"
	"github.com/codesearchd/codesearchd/internal/storage"
)

var backfillProvider string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed every chunk lacking a vector for one provider",
	Long: `backfill walks every chunk missing an embedding for --provider, newest
file first, until none remain or the process is interrupted. Use this
after changing the default provider or recovering from an outage that left
chunks unembedded.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringVar(&backfillProvider, "provider", "", "embedding provider name to backfill (required)")
	backfillCmd.MarkFlagRequired("provider")
}

func runBackfill(cmd *cobra.Command, args []string) error {
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

	if _, ok := cfg.Embedding.Providers[backfillProvider]; !ok {
		return withExitCode(exitInvalidConfig, fmt.Errorf("unknown embedding provider %q", backfillProvider))
	}

	dbPath := cfg.DB.Path
	if !filepathAbs(dbPath) {
		dbPath = joinPath(root, dbPath)
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return withExitCode(exitMissingPrereq, fmt.Errorf("open chunk store: %w", err))
	}
	defer store.Close()

	embedOrch := embedding.New(log, store, cfg.Embedding)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := embedOrch.Backfill(ctx, backfillProvider); err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("backfill: %w", err))
	}

	fmt.Printf("Backfill complete for provider %q\n", backfillProvider)
	return nil
}
