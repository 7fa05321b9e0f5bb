package indexer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codesearchd/codesearchd/internal/parser"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// processFile implements the per-file half of the indexing pipeline: read,
// hash, short-circuit on no-op, parse, and atomically replace the file's
// chunk set. It never returns a partial write — ReplaceChunks is
// transactional — and a parse failure leaves the file's existing row and
// chunks exactly as they were.
//
// absPath is the file's location on disk; relPath is what gets stored as
// files.path and is what callers (the watcher, discovery) should pass
// consistently so identity is stable across restarts.
func processFile(store *storage.ChunkStore, registry *parser.Registry, root, relPath string) (ProcessOutcome, error) {
	absPath := filepath.Join(root, relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureIO, err: fmt.Errorf("stat %s: %w", relPath, err)}
	}

	source, err := os.ReadFile(absPath)
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureIO, err: fmt.Errorf("read %s: %w", relPath, err)}
	}

	contentHash := hashContent(source)

	existing, found, err := store.GetFileByPath(relPath)
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureDatabase, err: fmt.Errorf("look up %s: %w", relPath, err)}
	}
	if found && existing.ContentHash == contentHash {
		return ProcessOutcome{Path: relPath, Unchanged: true}, nil
	}

	language := parser.ResolveLanguage(relPath, firstLine(source))
	if language == "" {
		// Unknown extension: silently ignored. If a prior row exists (the
		// file used to be supported, or was renamed from one that was),
		// cascade-delete it rather than leave a stale row behind; otherwise
		// this is a no-op, not a new "unknown" file row.
		return processDeletion(store, relPath)
	}

	drafts, _, parseErr := registry.Parse(language, source)
	if parseErr != nil && len(drafts) == 0 {
		fileID := existing.ID
		if !found {
			// Persist the file row anyway so the failure has somewhere to
			// attach and a later successful reprocess has an identity to
			// update in place.
			fileID, err = store.UpsertFile(relPath, language, contentHash, info.ModTime())
			if err != nil {
				return ProcessOutcome{}, &processError{kind: FailureDatabase, err: err}
			}
		}
		return ProcessOutcome{}, &processError{kind: FailureParse, fileID: fileID, err: parseErr}
	}

	chunks := make([]storage.Chunk, 0, len(drafts))
	for _, d := range drafts {
		if len(bytes.TrimSpace(d.Code)) == 0 {
			continue
		}
		chunks = append(chunks, storage.Chunk{
			Kind:        string(d.Kind),
			Symbol:      d.Symbol,
			StartLine:   d.StartLine,
			EndLine:     d.EndLine,
			Code:        string(d.Code),
			ContentHash: hashContent(d.Code),
		})
	}

	fileID, err := store.UpsertFile(relPath, language, contentHash, info.ModTime())
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureDatabase, err: err}
	}

	added, err := store.ReplaceChunks(fileID, chunks)
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureDatabase, err: err}
	}

	return ProcessOutcome{Path: relPath, Added: added}, nil
}

// processDeletion removes a file and its chunks/embeddings entirely.
func processDeletion(store *storage.ChunkStore, relPath string) (ProcessOutcome, error) {
	existing, found, err := store.GetFileByPath(relPath)
	if err != nil {
		return ProcessOutcome{}, &processError{kind: FailureDatabase, err: err}
	}
	if !found {
		return ProcessOutcome{Path: relPath, Deleted: true}, nil
	}
	if err := store.DeleteFileCascade(existing.ID); err != nil {
		return ProcessOutcome{}, &processError{kind: FailureDatabase, fileID: existing.ID, err: err}
	}
	return ProcessOutcome{Path: relPath, Deleted: true}, nil
}

// processError wraps a processing failure with enough context for the
// coordinator to decide between a file_failures record and a timed retry.
type processError struct {
	kind   FailureKind
	fileID int64
	err    error
}

func (e *processError) Error() string { return e.err.Error() }
func (e *processError) Unwrap() error { return e.err }

func hashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func firstLine(source []byte) []byte {
	for i, b := range source {
		if b == '\n' {
			return source[:i]
		}
	}
	return source
}

