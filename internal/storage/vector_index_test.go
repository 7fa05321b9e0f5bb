package storage

// Test Plan for the per-tuple vector index:
// - EnsureTupleTable creates a vec0 table named per Tuple.TableName()
// - EnsureTupleTable is idempotent (IF NOT EXISTS)
// - bulkInsertEmbeddings inserts rows retrievable via queryVectorSimilarity
// - bulkInsertEmbeddings upserts (re-inserting a chunk id replaces its vector)
// - deleteEmbeddingsForChunks removes only the targeted chunk ids
// - queryVectorSimilarity orders by ascending distance and honors the limit
// - distanceFunc selects vec_distance_L2 for an "l2" tuple and
//   vec_distance_cosine otherwise
// - countEmbeddings reflects the current row count

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openVectorTestDB(t *testing.T) *sql.DB {
	t.Helper()
	InitVectorExtension()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureTupleTable_CreatesNamedTable(t *testing.T) {
	t.Parallel()
	db := openVectorTestDB(t)
	tuple := Tuple{Provider: "local", Model: "bge-small-en-v1.5", Dim: 4, Distance: "cosine"}

	require.NoError(t, EnsureTupleTable(db, tuple))
	require.NoError(t, EnsureTupleTable(db, tuple), "must be idempotent")

	count, err := countEmbeddings(db, tuple.TableName())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBulkInsertEmbeddings_UpsertsOnReinsert(t *testing.T) {
	t.Parallel()
	db := openVectorTestDB(t)
	tuple := Tuple{Provider: "local", Model: "m", Dim: 2, Distance: "cosine"}
	require.NoError(t, EnsureTupleTable(db, tuple))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, bulkInsertEmbeddings(tx, tuple.TableName(), []EmbeddingRow{{ChunkID: 1, Vector: []float32{1, 0}}}))
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, bulkInsertEmbeddings(tx, tuple.TableName(), []EmbeddingRow{{ChunkID: 1, Vector: []float32{0, 1}}}))
	require.NoError(t, tx.Commit())

	count, err := countEmbeddings(db, tuple.TableName())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-inserting the same chunk id must replace, not duplicate")

	results, err := queryVectorSimilarity(db, tuple, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestDeleteEmbeddingsForChunks_RemovesOnlyTargeted(t *testing.T) {
	t.Parallel()
	db := openVectorTestDB(t)
	tuple := Tuple{Provider: "local", Model: "m", Dim: 2, Distance: "cosine"}
	require.NoError(t, EnsureTupleTable(db, tuple))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, bulkInsertEmbeddings(tx, tuple.TableName(), []EmbeddingRow{
		{ChunkID: 1, Vector: []float32{1, 0}},
		{ChunkID: 2, Vector: []float32{0, 1}},
	}))
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, deleteEmbeddingsForChunks(tx, tuple.TableName(), []int64{1}))
	require.NoError(t, tx.Commit())

	count, err := countEmbeddings(db, tuple.TableName())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := queryVectorSimilarity(db, tuple, []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ChunkID)
}

func TestQueryVectorSimilarity_OrdersByAscendingDistanceAndHonorsLimit(t *testing.T) {
	t.Parallel()
	db := openVectorTestDB(t)
	tuple := Tuple{Provider: "local", Model: "m", Dim: 2, Distance: "cosine"}
	require.NoError(t, EnsureTupleTable(db, tuple))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, bulkInsertEmbeddings(tx, tuple.TableName(), []EmbeddingRow{
		{ChunkID: 1, Vector: []float32{1, 0}},
		{ChunkID: 2, Vector: []float32{0.9, 0.1}},
		{ChunkID: 3, Vector: []float32{-1, 0}},
	}))
	require.NoError(t, tx.Commit())

	results, err := queryVectorSimilarity(db, tuple, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ChunkID)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestDistanceFunc_SelectsMetricPerTuple(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "vec_distance_L2", distanceFunc("l2"))
	assert.Equal(t, "vec_distance_cosine", distanceFunc("cosine"))
	assert.Equal(t, "vec_distance_cosine", distanceFunc(""))
}
