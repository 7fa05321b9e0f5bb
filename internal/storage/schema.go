package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CreateSchema creates the files, chunks, file_failures, chunks_fts, and
// cache_metadata tables/indexes inside one transaction. Tuple tables
// (embeddings_{provider}_{model}_{dim}) are created lazily on first use via
// EnsureTupleTable, since which tuples are active is a runtime decision.
//
// Must be called with PRAGMA foreign_keys = ON already set on db.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"files", createFilesTable},
		{"chunks", createChunksTable},
		{"file_failures", createFileFailuresTable},
		{"cache_metadata", createCacheMetadataTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	bootstrapSQL := `
		INSERT INTO cache_metadata (key, value, updated_at) VALUES
			('schema_version', '1', ?)
	`
	if _, err := tx.Exec(bootstrapSQL, now); err != nil {
		return fmt.Errorf("failed to bootstrap cache_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}

	// FTS5 virtual tables and their sync triggers must be created outside
	// the schema transaction.
	if err := CreateFTSIndex(db); err != nil {
		return fmt.Errorf("failed to create FTS index: %w", err)
	}
	if err := createFTSTriggers(db); err != nil {
		return fmt.Errorf("failed to create FTS triggers: %w", err)
	}

	return nil
}

// GetSchemaVersion retrieves the schema version from cache_metadata. Returns
// "0" if the table doesn't exist (new database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='cache_metadata'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check cache_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM cache_metadata WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("schema_version key not found in cache_metadata")
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

const createFilesTable = `
CREATE TABLE files (
    file_id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    language TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    last_modified TEXT NOT NULL,             -- RFC3339 mtime from filesystem
    indexed_at TEXT NOT NULL                 -- RFC3339 when this file was last committed
)
`

const createChunksTable = `
CREATE TABLE chunks (
    chunk_id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    symbol TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    code TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    FOREIGN KEY (file_id) REFERENCES files(file_id) ON DELETE CASCADE,
    UNIQUE (file_id, start_line, end_line, kind, symbol)
)
`

const createFileFailuresTable = `
CREATE TABLE file_failures (
    file_id INTEGER NOT NULL,
    error_kind TEXT NOT NULL,
    message TEXT NOT NULL,
    occurred_at TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 1,
    FOREIGN KEY (file_id) REFERENCES files(file_id) ON DELETE CASCADE
)
`

const createCacheMetadataTable = `
CREATE TABLE cache_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

func getAllIndexes() []string {
	return []string{
		"CREATE INDEX idx_files_language ON files(language)",
		"CREATE INDEX idx_chunks_file_id ON chunks(file_id)",
		"CREATE INDEX idx_chunks_kind ON chunks(kind)",
		"CREATE INDEX idx_file_failures_file_id ON file_failures(file_id)",
	}
}

// createFTSTriggers keeps chunks_fts synced with chunks via AFTER triggers,
// the same insert/update/delete shape the teacher uses for files_fts.
func createFTSTriggers(db *sql.DB) error {
	triggers := []string{
		`CREATE TRIGGER chunks_fts_insert AFTER INSERT ON chunks
		BEGIN
			INSERT INTO chunks_fts(rowid, code) VALUES (NEW.chunk_id, NEW.code);
		END`,

		`CREATE TRIGGER chunks_fts_update AFTER UPDATE OF code ON chunks
		BEGIN
			DELETE FROM chunks_fts WHERE rowid = OLD.chunk_id;
			INSERT INTO chunks_fts(rowid, code) VALUES (NEW.chunk_id, NEW.code);
		END`,

		`CREATE TRIGGER chunks_fts_delete AFTER DELETE ON chunks
		BEGIN
			DELETE FROM chunks_fts WHERE rowid = OLD.chunk_id;
		END`,
	}

	for i, trigger := range triggers {
		if _, err := db.Exec(trigger); err != nil {
			return fmt.Errorf("failed to create trigger %d: %w", i+1, err)
		}
	}
	return nil
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9]+`)

// embeddingsTableName derives a valid, deterministic SQLite identifier for a
// (provider, model, dim) tuple per SPEC_FULL.md §3.
func embeddingsTableName(provider, model string, dim int) string {
	p := nonIdentChars.ReplaceAllString(strings.ToLower(provider), "_")
	m := nonIdentChars.ReplaceAllString(strings.ToLower(model), "_")
	return fmt.Sprintf("embeddings_%s_%s_%d", p, m, dim)
}
