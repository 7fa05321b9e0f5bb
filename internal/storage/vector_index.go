package storage

import (
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// InitVectorExtension registers the sqlite-vec extension globally. Must be
// called once before opening any database connection that uses vec0 tables.
func InitVectorExtension() {
	sqlite_vec.Auto()
}

// distanceFunc maps a Tuple's configured distance metric to the sqlite-vec
// scalar function that computes it.
func distanceFunc(distance string) string {
	if distance == "l2" {
		return "vec_distance_L2"
	}
	return "vec_distance_cosine"
}

// EnsureTupleTable creates the vec0 virtual table backing tuple if it
// doesn't already exist. One table per active (provider, model, dim) tuple,
// named per embeddingsTableName — built lazily on first insert, per the
// AnnIndex entity's "built lazily" invariant.
func EnsureTupleTable(db *sql.DB, tuple Tuple) error {
	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			embedding float[%d]
		)`,
		tuple.TableName(), tuple.Dim,
	)
	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create tuple table %s: %w", tuple.TableName(), err)
	}
	return nil
}

// bulkInsertEmbeddings writes every row in one transaction, all-or-nothing,
// per spec §4.4's "partial writes are forbidden" persistence rule. Existing
// rows for the same chunk ids are replaced (vec0 has no upsert, so delete
// then insert).
func bulkInsertEmbeddings(tx *sql.Tx, table string, rows []EmbeddingRow) error {
	if len(rows) == 0 {
		return nil
	}

	deleteStmt, err := tx.Prepare(fmt.Sprintf("DELETE FROM %s WHERE chunk_id = ?", table))
	if err != nil {
		return fmt.Errorf("prepare tuple delete: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (chunk_id, embedding) VALUES (?, ?)", table))
	if err != nil {
		return fmt.Errorf("prepare tuple insert: %w", err)
	}
	defer insertStmt.Close()

	for _, row := range rows {
		embBytes, err := sqlite_vec.SerializeFloat32(row.Vector)
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d: %w", row.ChunkID, err)
		}
		if _, err := deleteStmt.Exec(row.ChunkID); err != nil {
			return fmt.Errorf("delete existing embedding for chunk %d: %w", row.ChunkID, err)
		}
		if _, err := insertStmt.Exec(row.ChunkID, embBytes); err != nil {
			return fmt.Errorf("insert embedding for chunk %d: %w", row.ChunkID, err)
		}
	}
	return nil
}

// deleteEmbeddingsForChunks removes any rows for chunkIDs from table. vec0
// tables carry no foreign keys, so file/chunk cascade deletes must reach
// every active tuple table explicitly.
func deleteEmbeddingsForChunks(tx *sql.Tx, table string, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(fmt.Sprintf("DELETE FROM %s WHERE chunk_id = ?", table))
	if err != nil {
		return fmt.Errorf("prepare tuple cascade delete: %w", err)
	}
	defer stmt.Close()
	for _, id := range chunkIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("delete embedding for chunk %d: %w", id, err)
		}
	}
	return nil
}

// vectorSearchRow is one raw ANN hit before joining against chunks.
type vectorSearchRow struct {
	ChunkID  int64
	Distance float64
}

// queryVectorSimilarity runs a KNN query against tuple's table, returning
// the top fetchCount rows ordered by ascending distance (closest first).
func queryVectorSimilarity(db *sql.DB, tuple Tuple, queryVec []float32, fetchCount int) ([]vectorSearchRow, error) {
	queryBytes, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT chunk_id, %s(embedding, ?) as distance FROM %s ORDER BY distance LIMIT ?`,
		distanceFunc(tuple.Distance), tuple.TableName(),
	)

	rows, err := db.Query(query, queryBytes, fetchCount)
	if err != nil {
		return nil, fmt.Errorf("query tuple table %s: %w", tuple.TableName(), err)
	}
	defer rows.Close()

	var results []vectorSearchRow
	for rows.Next() {
		var r vectorSearchRow
		if err := rows.Scan(&r.ChunkID, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// countEmbeddings returns the number of rows in tuple's table.
func countEmbeddings(db *sql.DB, table string) (int, error) {
	var count int
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tuple table %s: %w", table, err)
	}
	return count, nil
}
