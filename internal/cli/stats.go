package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/storage"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print Chunk Store counts without starting any server",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	root, err := resolveProjectRoot()
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("resolve project root: %w", err))
	}

	cfg, err := config.LoadFromDir(root)
	if err != nil {
		return withExitCode(exitInvalidConfig, fmt.Errorf("load configuration: %w", err))
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

	stats, err := store.Stats()
	if err != nil {
		return withExitCode(exitRuntimeError, fmt.Errorf("read stats: %w", err))
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Files:   %d\n", stats.FileCount)
	fmt.Printf("Chunks:  %d\n", stats.ChunkCount)
	fmt.Println("By language:")
	for lang, n := range stats.ChunksByLanguage {
		fmt.Printf("  %-12s %d\n", lang, n)
	}
	fmt.Println("Embeddings by provider table:")
	for tuple, n := range stats.EmbeddingsByTuple {
		pending := stats.PendingEmbeddings[tuple]
		fmt.Printf("  %-30s %d embedded, %d pending\n", tuple, n, pending)
	}
	return nil
}
