package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// CreateFTSIndex creates the chunks_fts virtual table used as a
// non-authoritative pre-filter for regex_search (SPEC_FULL.md §3/§4.5):
// FTS5 narrows candidates by a literal prefix extracted from the pattern,
// but every candidate is re-checked with the REGEXP SQL function before
// being returned, so FTS5 never itself decides a match.
func CreateFTSIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE chunks_fts USING fts5(
			code,
			tokenize = 'unicode61 remove_diacritics 0'
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create FTS5 index: %w", err)
	}
	return nil
}

// escapeFTSQuery escapes FTS5 special characters (double quotes) so a raw
// literal can be embedded in a phrase query.
func escapeFTSQuery(input string) string {
	return strings.ReplaceAll(input, `"`, `""`)
}

// ftsCandidateIDs returns chunk_ids whose code contains literal as an FTS5
// phrase match, an optimization over a full table scan. Candidates must
// still be re-verified by the caller — FTS5 tokenization can both over- and
// under-match relative to RE2 semantics.
func ftsCandidateIDs(db *sql.DB, literal string) ([]int64, error) {
	rows, err := db.Query(
		`SELECT rowid FROM chunks_fts WHERE code MATCH ?`,
		fmt.Sprintf(`"%s"`, escapeFTSQuery(literal)),
	)
	if err != nil {
		return nil, fmt.Errorf("fts candidate query: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("fts candidate scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
