package storage

// Test Plan for schema:
// - CreateSchema creates files, chunks, file_failures, cache_metadata and
//   chunks_fts tables plus the expected indexes
// - CreateSchema bootstraps schema_version = "1"
// - GetSchemaVersion returns "0" for a database with no cache_metadata table
// - chunks.chunk_id is an autoincrement integer surrogate key
// - files.path is unique; re-inserting the same path violates the constraint
// - chunks.file_id cascades on files delete (ON DELETE CASCADE)
// - embeddingsTableName sanitizes provider/model into a valid identifier
//   and is stable for the same inputs

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSchemaTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	return db
}

func TestCreateSchema_CreatesExpectedTables(t *testing.T) {
	t.Parallel()
	db := openSchemaTestDB(t)
	require.NoError(t, CreateSchema(db))

	for _, table := range []string{"files", "chunks", "file_failures", "cache_metadata", "chunks_fts"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type IN ('table') AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestCreateSchema_BootstrapsSchemaVersion(t *testing.T) {
	t.Parallel()
	db := openSchemaTestDB(t)
	require.NoError(t, CreateSchema(db))

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestGetSchemaVersion_NoTableReturnsZero(t *testing.T) {
	t.Parallel()
	db := openSchemaTestDB(t)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "0", version)
}

func TestSchema_FilesPathIsUnique(t *testing.T) {
	t.Parallel()
	db := openSchemaTestDB(t)
	require.NoError(t, CreateSchema(db))

	_, err := db.Exec(`INSERT INTO files (path, language, content_hash, last_modified, indexed_at) VALUES ('a.go', 'go', 'h1', 'now', 'now')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO files (path, language, content_hash, last_modified, indexed_at) VALUES ('a.go', 'go', 'h2', 'now', 'now')`)
	assert.Error(t, err, "duplicate path must violate the UNIQUE constraint")
}

func TestSchema_ChunksCascadeOnFileDelete(t *testing.T) {
	t.Parallel()
	db := openSchemaTestDB(t)
	require.NoError(t, CreateSchema(db))

	res, err := db.Exec(`INSERT INTO files (path, language, content_hash, last_modified, indexed_at) VALUES ('a.go', 'go', 'h1', 'now', 'now')`)
	require.NoError(t, err)
	fileID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO chunks (file_id, kind, symbol, start_line, end_line, code, content_hash) VALUES (?, 'function', 'f', 1, 2, 'code', 'ch1')`, fileID)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM files WHERE file_id = ?`, fileID)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM chunks WHERE file_id = ?", fileID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestEmbeddingsTableName_SanitizesAndIsStable(t *testing.T) {
	t.Parallel()

	name := embeddingsTableName("OpenAI", "text-embedding-3-small", 1536)
	assert.Equal(t, "embeddings_openai_text_embedding_3_small_1536", name)

	again := embeddingsTableName("OpenAI", "text-embedding-3-small", 1536)
	assert.Equal(t, name, again)
}
