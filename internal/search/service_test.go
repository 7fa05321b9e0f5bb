package search

// Test Plan for Service:
// - Regex finds a matching chunk and paginates correctly
// - Regex's response budgeter truncates code_preview when max_response_bytes
//   is small
// - Semantic embeds the query text and ranks by ascending distance
// - An unknown provider name is rejected before any embedding call

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/embedding"
	"github.com/codesearchd/codesearchd/internal/storage"
)

func newSearchTestStore(t *testing.T) *storage.ChunkStore {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedChunk(t *testing.T, store *storage.ChunkStore, path, code, symbol string) storage.Chunk {
	t.Helper()
	fileID, err := store.UpsertFile(path, "go", "hash-"+path, time.Now())
	require.NoError(t, err)
	added, err := store.ReplaceChunks(fileID, []storage.Chunk{
		{Kind: "function", Symbol: symbol, StartLine: 1, EndLine: 10, Code: code, ContentHash: "h-" + symbol},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)
	chunks, err := store.ChunksByIDs(added)
	require.NoError(t, err)
	return chunks[0]
}

func TestService_Regex_FindsMatchAndPaginates(t *testing.T) {
	t.Parallel()
	store := newSearchTestStore(t)
	seedChunk(t, store, "a.go", "func Alpha() { return 1 }", "Alpha")
	seedChunk(t, store, "b.go", "func Beta() { return 2 }", "Beta")

	svc := New(store, embedding.New(nil, store, config.EmbeddingConfig{}), config.SearchConfig{MaxResponseBytes: 60000})

	resp, err := svc.Regex(RegexRequest{Pattern: `func \w+\(\)`, PageSize: 1, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Pagination.Returned)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, 1, resp.Pagination.NextOffset)
	require.NotNil(t, resp.Pagination.Total)
	assert.Equal(t, 2, *resp.Pagination.Total)

	resp2, err := svc.Regex(RegexRequest{Pattern: `func \w+\(\)`, PageSize: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, resp2.Pagination.Returned)
	assert.False(t, resp2.Pagination.HasMore)
}

func TestService_Regex_BudgetTruncatesCodePreview(t *testing.T) {
	t.Parallel()
	store := newSearchTestStore(t)
	longCode := "func Big() {\n"
	for i := 0; i < 2000; i++ {
		longCode += "    doSomething()\n"
	}
	longCode += "}\n"
	seedChunk(t, store, "big.go", longCode, "Big")

	svc := New(store, embedding.New(nil, store, config.EmbeddingConfig{}), config.SearchConfig{MaxResponseBytes: 500})

	resp, err := svc.Regex(RegexRequest{Pattern: `func Big`, PageSize: 10, Offset: 0})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].IsTruncated)
	assert.Less(t, len(resp.Results[0].CodePreview), len(longCode))
}

func TestService_Semantic_RanksByDistance(t *testing.T) {
	t.Parallel()
	store := newSearchTestStore(t)
	near := seedChunk(t, store, "near.go", "func Near() {}", "Near")
	far := seedChunk(t, store, "far.go", "func Far() {}", "Far")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
			Mode  string   `json:"mode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Embeddings [][]float32 `json:"embeddings"`
		}{Embeddings: [][]float32{{1, 0, 0}}})
	}))
	defer srv.Close()

	cfg := config.EmbeddingConfig{
		Providers: map[string]config.ProviderConfig{
			"local": {BaseURL: srv.URL, Model: "m", Dim: 3, Distance: "l2", TimeoutS: 5,
				Batch: config.BatchConfig{Min: 1, Initial: 8, Max: 16, Growth: 1.5, Shrink: 0.5}},
		},
	}
	orch := embedding.New(nil, store, cfg)
	tuple, ok := orch.Tuple("local")
	require.True(t, ok)

	require.NoError(t, store.BulkInsertEmbeddings(tuple, []storage.EmbeddingRow{
		{ChunkID: near.ID, Vector: []float32{1, 0, 0}},
		{ChunkID: far.ID, Vector: []float32{0, 0, 1}},
	}))

	svc := New(store, orch, config.SearchConfig{MaxResponseBytes: 60000})
	resp, err := svc.Semantic(context.Background(), SemanticRequest{QueryText: "near", Provider: "local", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "near.go", resp.Results[0].Path)
	assert.Equal(t, "far.go", resp.Results[1].Path)
	assert.True(t, resp.Results[0].Distance < resp.Results[1].Distance)
}

func TestService_Semantic_UnknownProviderIsRejected(t *testing.T) {
	t.Parallel()
	store := newSearchTestStore(t)
	svc := New(store, embedding.New(nil, store, config.EmbeddingConfig{}), config.SearchConfig{})

	_, err := svc.Semantic(context.Background(), SemanticRequest{QueryText: "x", Provider: "missing"})
	assert.Error(t, err)
}
