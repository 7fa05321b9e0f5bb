// Package cli implements codesearchd's command-line surface: serve, index,
// backfill, stats, and version, built with spf13/cobra the way the teacher
// repo's internal/cli does, wired to this module's own config, storage,
// indexing, embedding, search, and protocol packages instead of its own.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "codesearchd",
	Short: "Local-first code search: watch, chunk, embed, and query a source tree",
	Long: `codesearchd watches a source tree, slices files into language-aware
chunks, indexes them in an embedded SQLite database with regex/FTS5 and
vector (sqlite-vec) search, and serves paginated queries over a stdio
tool protocol and a small HTTP surface.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from cmd/codesearchd/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", "", "project root directory (default: current directory)")
}

func resolveProjectRoot() (string, error) {
	if projectRoot != "" {
		return projectRoot, nil
	}
	return os.Getwd()
}

// exitCode classifies a command failure per spec.md §6: 2 invalid
// configuration, 3 missing prerequisite, 4 unrecoverable runtime error.
type exitCode int

const (
	exitInvalidConfig exitCode = 2
	exitMissingPrereq exitCode = 3
	exitRuntimeError  exitCode = 4
)

type exitCodeError struct {
	code exitCode
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code exitCode, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

func exitCodeFor(err error) int {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return int(ec.code)
	}
	return int(exitRuntimeError)
}
