package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// extractLiteralPrefix returns the leading run of non-metacharacter bytes of
// pattern, if at least 3 bytes long. It's a best-effort optimization: when a
// prefix is found, regex_search narrows candidates via the FTS5 index before
// re-verifying each one with the real regex engine; when it isn't, the
// search falls back to a full scan filtered by the REGEXP SQL function.
func extractLiteralPrefix(pattern string) (string, bool) {
	const metachars = `\.+*?()|[]{}^$`
	end := len(pattern)
	for i := 0; i < len(pattern); i++ {
		if strings.ContainsRune(metachars, rune(pattern[i])) {
			end = i
			break
		}
	}
	prefix := pattern[:end]
	if len(prefix) < 3 {
		return "", false
	}
	return prefix, true
}

func filterClause(filters Filters, args []any) (string, []any) {
	var clauses []string
	if filters.Language != "" {
		clauses = append(clauses, "f.language = ?")
		args = append(args, filters.Language)
	}
	if filters.PathPrefix != "" {
		clauses = append(clauses, "f.path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLikePrefix(filters.PathPrefix)+"%")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

const chunkSelectColumns = `
	c.chunk_id, c.file_id, f.path, f.language, c.kind, c.symbol,
	c.start_line, c.end_line, c.code, c.content_hash
`

func scanChunk(scan func(dest ...any) error) (Chunk, error) {
	var c Chunk
	err := scan(&c.ID, &c.FileID, &c.FilePath, &c.Language, &c.Kind, &c.Symbol,
		&c.StartLine, &c.EndLine, &c.Code, &c.ContentHash)
	return c, err
}

// loadChunksByIDs fetches chunks by id, applying filters, preserving no
// particular order (caller re-sorts as needed).
func (s *ChunkStore) loadChunksByIDs(ids []int64, filters Filters) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+2)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	extra, args := filterClause(filters, args)
	query := fmt.Sprintf(`
		SELECT %s FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id IN (%s)%s
	`, chunkSelectColumns, strings.Join(placeholders, ","), extra)

	rows, err := s.reader.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load chunks by id: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// loadChunksByRegexScan filters at the SQL layer with the REGEXP scalar
// function — a full scan, used when no usable literal prefix narrows the
// candidate set via FTS5 first.
func (s *ChunkStore) loadChunksByRegexScan(pattern string, filters Filters) ([]Chunk, error) {
	args := []any{pattern}
	extra, args := filterClause(filters, args)
	query := fmt.Sprintf(`
		SELECT %s FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.code REGEXP ?%s
	`, chunkSelectColumns, extra)

	rows, err := s.reader.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("regex scan: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *ChunkStore) loadChunkByID(id int64) (Chunk, bool, error) {
	row := s.reader.QueryRow(fmt.Sprintf(`
		SELECT %s FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id = ?
	`, chunkSelectColumns), id)

	c, err := scanChunk(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chunk{}, false, nil
		}
		return Chunk{}, false, fmt.Errorf("load chunk %d: %w", id, err)
	}
	return c, true, nil
}

// ChunksByIDs fetches chunks by id in no particular order, for the
// Embedding Orchestrator to load the code text of newly added chunks.
func (s *ChunkStore) ChunksByIDs(ids []int64) ([]Chunk, error) {
	return s.loadChunksByIDs(ids, Filters{})
}

// PendingChunksForTuple returns up to limit chunks that lack an embedding
// in tuple's table, ordered by the owning file's last_modified descending
// (newest edits backfilled first), for the backfill operation.
func (s *ChunkStore) PendingChunksForTuple(tuple Tuple, limit int) ([]Chunk, error) {
	if err := EnsureTupleTable(s.writer, tuple); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM chunks c JOIN files f ON f.file_id = c.file_id
		WHERE c.chunk_id NOT IN (SELECT chunk_id FROM %s)
		ORDER BY f.last_modified DESC
		LIMIT ?
	`, chunkSelectColumns, tuple.TableName())

	rows, err := s.reader.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("load pending chunks for %s: %w", tuple.TableName(), err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// RegexSearch implements regex_search: full ECMAScript-ish regex over chunk
// code, using Go's RE2 engine for both the SQL-level filter and the final
// match-offset computation (the database's own regex engine, per the
// alternation-pattern fix). FTS5 narrows candidates when a literal prefix is
// extractable; every candidate is always re-verified here, never trusted.
func (s *ChunkStore) RegexSearch(pattern string, filters Filters, pageSize, offset int) ([]Hit, int, error) {
	re, err := s.compileRegex(pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	var candidates []Chunk
	if literal, ok := extractLiteralPrefix(pattern); ok {
		ids, err := ftsCandidateIDs(s.reader, literal)
		if err != nil {
			return nil, 0, err
		}
		candidates, err = s.loadChunksByIDs(ids, filters)
		if err != nil {
			return nil, 0, err
		}
	} else {
		candidates, err = s.loadChunksByRegexScan(pattern, filters)
		if err != nil {
			return nil, 0, err
		}
	}

	var hits []Hit
	for _, c := range candidates {
		loc := re.FindStringIndex(c.Code)
		if loc == nil {
			continue
		}
		hits = append(hits, Hit{Chunk: c, MatchOffset: loc[0]})
	}

	total := len(hits)
	return paginateHits(hits, pageSize, offset), total, nil
}

// VectorSearch implements vector_search: top_k is the raw ANN fetch size
// (over-fetched by 4x when filters are selective, since filters apply after
// the ANN query), offset/page_size then slice the filtered, ranked list.
func (s *ChunkStore) VectorSearch(tuple Tuple, queryVector []float32, topK int, filters Filters, pageSize, offset int) ([]Hit, int, error) {
	fetchCount := topK
	if filters.Language != "" || filters.PathPrefix != "" {
		fetchCount = topK * 4
	}

	rows, err := queryVectorSimilarity(s.reader, tuple, queryVector, fetchCount)
	if err != nil {
		return nil, 0, err
	}

	var hits []Hit
	for _, r := range rows {
		chunk, ok, err := s.loadChunkByID(r.ChunkID)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			// Chunk was deleted since this embedding row was written;
			// tolerate it rather than surface a stale hit.
			continue
		}
		if filters.Language != "" && chunk.Language != filters.Language {
			continue
		}
		if filters.PathPrefix != "" && !strings.HasPrefix(chunk.FilePath, filters.PathPrefix) {
			continue
		}
		hits = append(hits, Hit{Chunk: chunk, Distance: r.Distance, HasDistance: true, MatchOffset: -1})
		if len(hits) >= topK {
			break
		}
	}

	total := len(hits)
	return paginateHits(hits, pageSize, offset), total, nil
}

func paginateHits(hits []Hit, pageSize, offset int) []Hit {
	if offset >= len(hits) {
		return nil
	}
	end := offset + pageSize
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}
