package storage

// Test Plan for search (regex_search / vector_search):
// - RegexSearch finds a simple literal pattern via the FTS5 pre-filter path
// - RegexSearch correctly matches alternation patterns like "A.*B.*C" that
//   a LIKE-based pre-filter historically failed on
// - RegexSearch falls back to a full scan when no usable literal prefix
//   exists in the pattern
// - RegexSearch applies language and path-prefix filters
// - RegexSearch pagination covers every result exactly once across offsets
// - VectorSearch ranks by ascending distance and respects top_k
// - VectorSearch tolerates a chunk deleted after its embedding was written
// - extractLiteralPrefix recognizes and rejects patterns appropriately

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPythonFile(t *testing.T, store *ChunkStore, path string, chunks []Chunk) int64 {
	t.Helper()
	fileID, err := store.UpsertFile(path, "python", "fh-"+path, time.Now())
	require.NoError(t, err)
	_, err = store.ReplaceChunks(fileID, chunks)
	require.NoError(t, err)
	return fileID
}

func TestRegexSearch_LiteralPrefixPath(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	seedPythonFile(t, store, "sample.py", []Chunk{
		{Kind: "function", Symbol: "greet", StartLine: 1, EndLine: 2, Code: "def greet():\n    return \"hi\"", ContentHash: "h1"},
	})

	hits, total, err := store.RegexSearch("def greet", Filters{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "greet", hits[0].Chunk.Symbol)
	assert.Equal(t, 1, hits[0].Chunk.StartLine)
	assert.Equal(t, 2, hits[0].Chunk.EndLine)
}

func TestRegexSearch_AlternationPatternMatches(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	seedPythonFile(t, store, "abc.py", []Chunk{
		{Kind: "function", Symbol: "f", StartLine: 1, EndLine: 1, Code: "A middle B tail C", ContentHash: "h1"},
	})

	// No usable literal prefix (the leading literal "A" is shorter than 3
	// bytes), so this exercises the REGEXP full-scan path.
	hits, total, err := store.RegexSearch("A.*B.*C", Filters{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total, "alternation-style pattern must match, unlike a LIKE-based pre-filter")
	assert.Equal(t, "f", hits[0].Chunk.Symbol)
}

func TestRegexSearch_FiltersByLanguageAndPathPrefix(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	seedPythonFile(t, store, "pkg/a.py", []Chunk{
		{Kind: "function", Symbol: "a", StartLine: 1, EndLine: 1, Code: "def handler(): pass", ContentHash: "ha"},
	})

	fileID, err := store.UpsertFile("pkg/b.go", "go", "fh-b", time.Now())
	require.NoError(t, err)
	_, err = store.ReplaceChunks(fileID, []Chunk{
		{Kind: "function", Symbol: "b", StartLine: 1, EndLine: 1, Code: "func handler() {}", ContentHash: "hb"},
	})
	require.NoError(t, err)

	hits, total, err := store.RegexSearch("handler", Filters{Language: "go"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "pkg/b.go", hits[0].Chunk.FilePath)

	hits, total, err = store.RegexSearch("handler", Filters{PathPrefix: "pkg/a"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "pkg/a.py", hits[0].Chunk.FilePath)
}

func TestRegexSearch_PaginationCoversEveryResultOnce(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	var chunks []Chunk
	for i := 0; i < 7; i++ {
		chunks = append(chunks, Chunk{
			Kind: "function", Symbol: rune32(i), StartLine: i + 1, EndLine: i + 1,
			Code: "def target(): pass", ContentHash: rune32(i),
		})
	}
	seedPythonFile(t, store, "many.py", chunks)

	seen := make(map[int64]bool)
	pageSize := 3
	for offset := 0; ; offset += pageSize {
		hits, total, err := store.RegexSearch("target", Filters{}, pageSize, offset)
		require.NoError(t, err)
		require.Equal(t, 7, total)
		if len(hits) == 0 {
			break
		}
		for _, h := range hits {
			assert.False(t, seen[h.Chunk.ID], "chunk %d returned twice across pages", h.Chunk.ID)
			seen[h.Chunk.ID] = true
		}
	}
	assert.Len(t, seen, 7)
}

func rune32(i int) string {
	return string(rune('a' + i))
}

func TestVectorSearch_RanksByAscendingDistance(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	fileID := seedPythonFile(t, store, "v.py", []Chunk{
		{Kind: "function", Symbol: "near", StartLine: 1, EndLine: 1, Code: "def near(): pass", ContentHash: "hn"},
		{Kind: "function", Symbol: "far", StartLine: 2, EndLine: 2, Code: "def far(): pass", ContentHash: "hf"},
	})
	_ = fileID

	hits, _, err := store.RegexSearch("def (near|far)", Filters{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	var nearID, farID int64
	for _, h := range hits {
		if h.Chunk.Symbol == "near" {
			nearID = h.Chunk.ID
		} else {
			farID = h.Chunk.ID
		}
	}

	tuple := Tuple{Provider: "local", Model: "bge-small-en-v1.5", Dim: 3, Distance: "cosine"}
	require.NoError(t, store.BulkInsertEmbeddings(tuple, []EmbeddingRow{
		{ChunkID: nearID, Vector: []float32{1, 0, 0}},
		{ChunkID: farID, Vector: []float32{-1, 0, 0}},
	}))

	results, total, err := store.VectorSearch(tuple, []float32{1, 0, 0}, 10, Filters{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, "near", results[0].Chunk.Symbol)
	assert.Equal(t, "far", results[1].Chunk.Symbol)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestVectorSearch_TopKLimitsResults(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	var chunks []Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, Chunk{
			Kind: "function", Symbol: rune32(i), StartLine: i + 1, EndLine: i + 1,
			Code: "def f(): pass", ContentHash: rune32(i),
		})
	}
	seedPythonFile(t, store, "k.py", chunks)

	hits, _, err := store.RegexSearch("def f", Filters{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	tuple := Tuple{Provider: "local", Model: "bge-small-en-v1.5", Dim: 2, Distance: "cosine"}
	var rows []EmbeddingRow
	for i, h := range hits {
		rows = append(rows, EmbeddingRow{ChunkID: h.Chunk.ID, Vector: []float32{float32(i), 0}})
	}
	require.NoError(t, store.BulkInsertEmbeddings(tuple, rows))

	_, total, err := store.VectorSearch(tuple, []float32{0, 0}, 2, Filters{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestExtractLiteralPrefix(t *testing.T) {
	t.Parallel()

	prefix, ok := extractLiteralPrefix("def greet")
	assert.True(t, ok)
	assert.Equal(t, "def greet", prefix)

	_, ok = extractLiteralPrefix("A.*B.*C")
	assert.False(t, ok)

	_, ok = extractLiteralPrefix("ab")
	assert.False(t, ok, "prefixes shorter than 3 bytes aren't useful for FTS narrowing")
}

func TestCompileRegex_CachesAcrossCalls(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first, err := store.compileRegex(`def \w+`)
	require.NoError(t, err)

	second, err := store.compileRegex(`def \w+`)
	require.NoError(t, err)

	assert.Same(t, first, second, "a repeated pattern should hit the cache rather than recompile")

	_, err = store.compileRegex(`(`)
	assert.Error(t, err, "an invalid pattern must not be cached as a nil entry")
}
