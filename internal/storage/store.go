package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/maypok86/otter"

	_ "github.com/mattn/go-sqlite3"
)

// regexCacheSize bounds how many compiled patterns RegexSearch keeps warm.
// Repeat callers (an IDE re-running the same query while a file changes, a
// paginating client) compile the same pattern many times in a row.
const regexCacheSize = 256

// ChunkStore is the single owned handle onto the embedded database: one
// writer connection (bounded to exactly one open connection so every write
// is naturally serialized) and a separate pooled read-only connection for
// concurrent searches. This replaces the package-level globals the source
// used, per the "single owned handle" design decision.
type ChunkStore struct {
	writer *sql.DB
	reader *sql.DB

	regexCache otter.Cache[string, *regexp.Regexp]
}

// Open creates (if needed) and opens the database at path, running schema
// migration on first use, and returns a ChunkStore ready for use.
func Open(path string) (*ChunkStore, error) {
	registerRegexpDriver()
	InitVectorExtension()

	writer, err := sql.Open(regexpDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if _, err := writer.Exec("PRAGMA foreign_keys = ON"); err != nil {
		writer.Close()
		return nil, fmt.Errorf("enable foreign keys on writer: %w", err)
	}
	if _, err := writer.Exec("PRAGMA journal_mode = WAL"); err != nil {
		writer.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	version, err := GetSchemaVersion(writer)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}
	if version == "0" {
		if err := CreateSchema(writer); err != nil {
			writer.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	reader, err := sql.Open(regexpDriverName, path+"?mode=ro")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader pool: %w", err)
	}
	if _, err := reader.Exec("PRAGMA foreign_keys = ON"); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("enable foreign keys on reader: %w", err)
	}

	regexCache, err := otter.MustBuilder[string, *regexp.Regexp](regexCacheSize).Build()
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("build regex cache: %w", err)
	}

	return &ChunkStore{writer: writer, reader: reader, regexCache: regexCache}, nil
}

// Close releases both connections.
func (s *ChunkStore) Close() error {
	s.regexCache.Close()
	writerErr := s.writer.Close()
	readerErr := s.reader.Close()
	if writerErr != nil {
		return writerErr
	}
	return readerErr
}

// compileRegex returns a cached *regexp.Regexp for pattern, compiling and
// caching it on a miss.
func (s *ChunkStore) compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := s.regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s.regexCache.Set(pattern, re)
	return re, nil
}

// UpsertFile inserts or updates the files row for path, returning its
// file_id. Called once per process_file before ReplaceChunks.
func (s *ChunkStore) UpsertFile(path, language, contentHash string, lastModified time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	mtime := lastModified.UTC().Format(time.RFC3339)

	if _, err := s.writer.Exec(`
		INSERT INTO files (path, language, content_hash, last_modified, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at
	`, path, language, contentHash, mtime, now); err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", path, err)
	}

	var fileID int64
	if err := s.writer.QueryRow("SELECT file_id FROM files WHERE path = ?", path).Scan(&fileID); err != nil {
		return 0, fmt.Errorf("fetch file_id for %s: %w", path, err)
	}
	return fileID, nil
}

// GetFileByPath returns the files row for path, if one exists. Used by the
// Indexing Coordinator's no-op fast path: an unchanged content_hash means
// the file can skip parsing and chunk replacement entirely.
func (s *ChunkStore) GetFileByPath(path string) (File, bool, error) {
	var f File
	var mtime, indexedAt string
	err := s.reader.QueryRow(`
		SELECT file_id, path, language, content_hash, last_modified, indexed_at
		FROM files WHERE path = ?
	`, path).Scan(&f.ID, &f.Path, &f.Language, &f.ContentHash, &mtime, &indexedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, false, nil
		}
		return File{}, false, fmt.Errorf("fetch file by path %s: %w", path, err)
	}
	f.LastModified, err = time.Parse(time.RFC3339, mtime)
	if err != nil {
		return File{}, false, fmt.Errorf("parse last_modified for %s: %w", path, err)
	}
	f.IndexedAt, err = time.Parse(time.RFC3339, indexedAt)
	if err != nil {
		return File{}, false, fmt.Errorf("parse indexed_at for %s: %w", path, err)
	}
	return f, true, nil
}

// RecordFailure appends a file_failures row documenting one failed
// processing attempt. The file row itself (and its existing chunks, if any)
// is left untouched so the file remains searchable with stale content until
// a later event successfully reprocesses it.
func (s *ChunkStore) RecordFailure(fileID int64, kind, message string, attempt int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.writer.Exec(`
		INSERT INTO file_failures (file_id, error_kind, message, occurred_at, attempt)
		VALUES (?, ?, ?, ?, ?)
	`, fileID, kind, message, now, attempt); err != nil {
		return fmt.Errorf("record failure for file %d: %w", fileID, err)
	}
	return nil
}

// DeleteFileCascade removes the file, its chunks, and every embedding for
// those chunks across all active tuple tables. No orphaned embeddings may
// remain afterward.
func (s *ChunkStore) DeleteFileCascade(fileID int64) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	chunkIDs, err := chunkIDsForFile(tx, fileID)
	if err != nil {
		return err
	}

	if len(chunkIDs) > 0 {
		tables, err := existingTupleTables(tx)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := deleteEmbeddingsForChunks(tx, table, chunkIDs); err != nil {
				return fmt.Errorf("cascade delete embeddings from %s: %w", table, err)
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM files WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete file %d: %w", fileID, err)
	}

	return tx.Commit()
}

// ReplaceChunks implements the diff-and-commit step from the indexing
// pipeline in a single transaction: chunks already present with an
// identical (kind, symbol, content_hash) are kept but have their line spans
// refreshed without touching their embeddings; everything else in the old
// set is removed (embeddings cascaded across all tuple tables); everything
// new is inserted. Returns the chunk_ids of newly inserted chunks, which the
// caller enqueues for embedding.
func (s *ChunkStore) ReplaceChunks(fileID int64, fresh []Chunk) (added []int64, err error) {
	tx, err := s.writer.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin replace transaction: %w", err)
	}
	defer tx.Rollback()

	type existingRow struct {
		id        int64
		startLine int
		endLine   int
	}
	existing := make(map[chunkIdentity]existingRow)

	rows, err := tx.Query(`
		SELECT chunk_id, kind, symbol, content_hash, start_line, end_line
		FROM chunks WHERE file_id = ?
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("load existing chunks: %w", err)
	}
	for rows.Next() {
		var id int64
		var kind, symbol, hash string
		var startLine, endLine int
		if err := rows.Scan(&id, &kind, &symbol, &hash, &startLine, &endLine); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan existing chunk: %w", err)
		}
		existing[chunkIdentity{kind, symbol, hash}] = existingRow{id, startLine, endLine}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate existing chunks: %w", err)
	}
	rows.Close()

	keptIdentities := make(map[chunkIdentity]bool, len(fresh))
	for _, c := range fresh {
		keptIdentities[chunkIdentity{c.Kind, c.Symbol, c.ContentHash}] = true
	}

	var removedIDs []int64
	for identity, row := range existing {
		if !keptIdentities[identity] {
			removedIDs = append(removedIDs, row.id)
		}
	}
	if len(removedIDs) > 0 {
		tables, err := existingTupleTables(tx)
		if err != nil {
			return nil, err
		}
		for _, table := range tables {
			if err := deleteEmbeddingsForChunks(tx, table, removedIDs); err != nil {
				return nil, fmt.Errorf("cascade delete embeddings from %s: %w", table, err)
			}
		}
		if err := deleteChunksByID(tx, removedIDs); err != nil {
			return nil, err
		}
	}

	updateStmt, err := tx.Prepare(`UPDATE chunks SET start_line = ?, end_line = ? WHERE chunk_id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare span update: %w", err)
	}
	insertStmt, err := tx.Prepare(`
		INSERT INTO chunks (file_id, kind, symbol, start_line, end_line, code, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		updateStmt.Close()
		return nil, fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer updateStmt.Close()
	defer insertStmt.Close()

	for _, c := range fresh {
		identity := chunkIdentity{c.Kind, c.Symbol, c.ContentHash}
		if row, ok := existing[identity]; ok {
			if row.startLine != c.StartLine || row.endLine != c.EndLine {
				if _, err := updateStmt.Exec(c.StartLine, c.EndLine, row.id); err != nil {
					return nil, fmt.Errorf("update span for chunk %d: %w", row.id, err)
				}
			}
			continue
		}
		res, err := insertStmt.Exec(fileID, c.Kind, c.Symbol, c.StartLine, c.EndLine, c.Code, c.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("insert chunk %s/%s: %w", c.Kind, c.Symbol, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read new chunk id: %w", err)
		}
		added = append(added, newID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace transaction: %w", err)
	}
	return added, nil
}

type chunkIdentity struct {
	kind        string
	symbol      string
	contentHash string
}

func chunkIDsForFile(tx *sql.Tx, fileID int64) ([]int64, error) {
	rows, err := tx.Query("SELECT chunk_id FROM chunks WHERE file_id = ?", fileID)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids for file %d: %w", fileID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func deleteChunksByID(tx *sql.Tx, ids []int64) error {
	stmt, err := tx.Prepare("DELETE FROM chunks WHERE chunk_id = ?")
	if err != nil {
		return fmt.Errorf("prepare chunk delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("delete chunk %d: %w", id, err)
		}
	}
	return nil
}

// existingTupleTables lists embeddings_* virtual tables already created,
// used to reach every active tuple during cascade deletes without the
// caller needing to track which tuples are configured.
func existingTupleTables(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'embeddings\_%' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("list tuple tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tuple table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// BulkInsertEmbeddings writes vectors for tuple in one all-or-nothing
// transaction, creating the tuple's table on first use.
func (s *ChunkStore) BulkInsertEmbeddings(tuple Tuple, rows []EmbeddingRow) error {
	if err := EnsureTupleTable(s.writer, tuple); err != nil {
		return err
	}

	tx, err := s.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin embedding transaction: %w", err)
	}
	defer tx.Rollback()

	if err := bulkInsertEmbeddings(tx, tuple.TableName(), rows); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats summarizes the store's contents for get_stats.
func (s *ChunkStore) Stats() (Stats, error) {
	stats := Stats{
		ChunksByLanguage:  make(map[string]int),
		EmbeddingsByTuple: make(map[string]int),
		PendingEmbeddings: make(map[string]int),
	}

	if err := s.reader.QueryRow("SELECT COUNT(*) FROM files").Scan(&stats.FileCount); err != nil {
		return stats, fmt.Errorf("count files: %w", err)
	}
	if err := s.reader.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&stats.ChunkCount); err != nil {
		return stats, fmt.Errorf("count chunks: %w", err)
	}

	rows, err := s.reader.Query(`
		SELECT f.language, COUNT(*)
		FROM chunks c JOIN files f ON f.file_id = c.file_id
		GROUP BY f.language
	`)
	if err != nil {
		return stats, fmt.Errorf("count chunks by language: %w", err)
	}
	for rows.Next() {
		var lang string
		var count int
		if err := rows.Scan(&lang, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan chunks-by-language row: %w", err)
		}
		stats.ChunksByLanguage[lang] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	tableRows, err := s.reader.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'embeddings\_%' ESCAPE '\'`)
	if err != nil {
		return stats, fmt.Errorf("list tuple tables: %w", err)
	}
	var tables []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			tableRows.Close()
			return stats, fmt.Errorf("scan tuple table name: %w", err)
		}
		tables = append(tables, name)
	}
	tableRows.Close()

	for _, table := range tables {
		count, err := countEmbeddings(s.reader, table)
		if err != nil {
			return stats, err
		}
		stats.EmbeddingsByTuple[table] = count

		var pending int
		q := fmt.Sprintf(`
			SELECT COUNT(*) FROM chunks
			WHERE chunk_id NOT IN (SELECT chunk_id FROM %s)
		`, table)
		if err := s.reader.QueryRow(q).Scan(&pending); err != nil {
			return stats, fmt.Errorf("count pending embeddings for %s: %w", table, err)
		}
		stats.PendingEmbeddings[table] = pending
	}

	return stats, nil
}

// writerConn exposes the writer connection to search.go for tuple table
// bootstrapping only; all query paths use the reader pool.
func (s *ChunkStore) writerConn() *sql.DB { return s.writer }
