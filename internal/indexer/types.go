// Package indexer implements the Indexing Coordinator: the single-writer
// pipeline that owns every mutation to the Chunk Store. It consumes events
// off the Task Coordinator's queue, diffs each file's old and new chunk
// sets, and atomically replaces a file's chunks in one transaction, handing
// newly added chunk ids off to the Embedding Orchestrator.
package indexer

import "time"

// FailureKind classifies why a single file failed to process, for the
// file_failures record and for deciding whether a retry can help.
type FailureKind string

const (
	// FailureParse means the language parser rejected the file's contents.
	// Retrying without a new event (e.g. another edit) will not help.
	FailureParse FailureKind = "parse_error"
	// FailureDatabase means the Chunk Store transaction failed. Transient;
	// retried with backoff.
	FailureDatabase FailureKind = "database_error"
	// FailureIO means the file could not be read (permissions, disappeared
	// between event and processing, etc).
	FailureIO FailureKind = "io_error"
)

// ProcessOutcome summarizes what happened to one path during a single
// pipeline pass, for logging and for driving the Embedding Orchestrator.
type ProcessOutcome struct {
	Path      string
	Added     []int64
	Unchanged bool
	Deleted   bool
}

// retryState tracks a path's backoff schedule across repeated database
// failures. Parse failures do not use this: they wait for the next
// filesystem event rather than being retried on a timer.
type retryState struct {
	attempt   int
	nextRetry time.Time
}
