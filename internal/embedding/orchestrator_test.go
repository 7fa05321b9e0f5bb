package embedding

// Test Plan for Orchestrator:
// - substituteEmpty replaces blank-only code with the sentinel, leaves real
//   code untouched
// - truncate caps text at char_cap, leaves shorter text untouched
// - embedAndStore writes retrievable embeddings for every input chunk
// - a provider that fails every attempt surfaces an error without partial
//   writes
// - an InvalidInput rejection drops only the offending index and still
//   embeds the rest of the batch
// - a Fatal error aborts immediately (no retries) and cools the provider off
//   for subsequent calls
// - a RateLimited rejection honors the provider's Retry-After before
//   succeeding

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/storage"
)

func TestSubstituteEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, sentinelText, substituteEmpty(""))
	assert.Equal(t, sentinelText, substituteEmpty("   \n\t"))
	assert.Equal(t, "func f() {}", substituteEmpty("func f() {}"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello", truncate("hello", 0))
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}

type fakeProvider struct {
	dim   int
	fail  bool
	calls int

	// errs, when set, is consumed one element per call (by zero-based call
	// index); a nil or out-of-range entry falls through to success. Lets a
	// test script a failure sequence followed by a recovery.
	errs []error
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	idx := f.calls
	f.calls++
	if f.fail {
		return nil, errors.New("provider unavailable")
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dim)
	}
	return vectors, nil
}

func (f *fakeProvider) Dimensions() int { return f.dim }

func newOrchestratorTestStore(t *testing.T) *storage.ChunkStore {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedChunksForEmbedding(t *testing.T, store *storage.ChunkStore, n int) []storage.Chunk {
	t.Helper()
	fileID, err := store.UpsertFile("a.go", "go", "hash", time.Now())
	require.NoError(t, err)

	fresh := make([]storage.Chunk, n)
	for i := range fresh {
		fresh[i] = storage.Chunk{Kind: "function", Symbol: string(rune('a' + i)), StartLine: i + 1, EndLine: i + 2, Code: "code", ContentHash: string(rune('a' + i))}
	}
	added, err := store.ReplaceChunks(fileID, fresh)
	require.NoError(t, err)
	require.Len(t, added, n)

	chunks, err := store.ChunksByIDs(added)
	require.NoError(t, err)
	return chunks
}

func newTestOrchestrator(store *storage.ChunkStore, provider Provider) *Orchestrator {
	o := &Orchestrator{
		log:       zap.NewNop(),
		store:     store,
		providers: map[string]Provider{"local": provider},
		tuples:    map[string]storage.Tuple{"local": {Provider: "local", Model: "m", Dim: provider.Dimensions(), Distance: "cosine"}},
		charCaps:  map[string]int{"local": 0},
		inFlight:  make(map[tupleKey]*sync.Mutex),
		batchers:  map[tupleKey]*adaptiveBatcher{{"local", "m"}: newAdaptiveBatcher(config.BatchConfig{Min: 1, Initial: 8, Max: 100, Growth: 1.5, Shrink: 0.5})},
		cooldowns: make(map[string]time.Time),
	}
	return o
}

func TestOrchestrator_EmbedAndStoreWritesRetrievableVectors(t *testing.T) {
	t.Parallel()
	store := newOrchestratorTestStore(t)
	chunks := seedChunksForEmbedding(t, store, 3)
	o := newTestOrchestrator(store, &fakeProvider{dim: 4})

	require.NoError(t, o.embedAndStore(context.Background(), "local", chunks))

	stats, err := store.Stats()
	require.NoError(t, err)
	tuple := storage.Tuple{Provider: "local", Model: "m", Dim: 4, Distance: "cosine"}
	assert.Equal(t, 3, stats.EmbeddingsByTuple[tuple.TableName()])
}

func TestOrchestrator_FailingProviderReturnsErrorWithoutPartialWrites(t *testing.T) {
	t.Parallel()
	store := newOrchestratorTestStore(t)
	chunks := seedChunksForEmbedding(t, store, 2)
	o := newTestOrchestrator(store, &fakeProvider{dim: 4, fail: true})

	err := o.embedAndStore(context.Background(), "local", chunks)
	require.Error(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)
	tuple := storage.Tuple{Provider: "local", Model: "m", Dim: 4, Distance: "cosine"}
	assert.Equal(t, 0, stats.EmbeddingsByTuple[tuple.TableName()])
}

func TestOrchestrator_InvalidInputDropsOffendingIndexAndContinues(t *testing.T) {
	t.Parallel()
	store := newOrchestratorTestStore(t)
	chunks := seedChunksForEmbedding(t, store, 3)
	provider := &fakeProvider{dim: 4, errs: []error{&ProviderError{Kind: ErrInvalidInput, Indices: []int{1}, Err: errors.New("text too long")}}}
	o := newTestOrchestrator(store, provider)

	require.NoError(t, o.embedAndStore(context.Background(), "local", chunks))

	stats, err := store.Stats()
	require.NoError(t, err)
	tuple := storage.Tuple{Provider: "local", Model: "m", Dim: 4, Distance: "cosine"}
	assert.Equal(t, 2, stats.EmbeddingsByTuple[tuple.TableName()], "the rejected index is dropped, the rest of the batch still embeds")
	assert.Equal(t, 2, provider.calls, "one call rejects index 1, a second embeds the remaining two")
}

func TestOrchestrator_FatalErrorAbortsImmediatelyAndCoolsDownProvider(t *testing.T) {
	t.Parallel()
	store := newOrchestratorTestStore(t)
	chunks := seedChunksForEmbedding(t, store, 2)
	provider := &fakeProvider{dim: 4, errs: []error{&ProviderError{Kind: ErrFatal, Err: errors.New("bad api key")}}}
	o := newTestOrchestrator(store, provider)

	err := o.embedAndStore(context.Background(), "local", chunks)
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls, "a fatal error must abort the batch rather than retry")

	err = o.embedAndStore(context.Background(), "local", chunks)
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls, "a cooled-off provider must not be called again")
}

func TestOrchestrator_RateLimitedHonorsRetryAfterThenSucceeds(t *testing.T) {
	t.Parallel()
	store := newOrchestratorTestStore(t)
	chunks := seedChunksForEmbedding(t, store, 2)
	provider := &fakeProvider{dim: 4, errs: []error{&ProviderError{Kind: ErrRateLimited, RetryAfter: 10 * time.Millisecond, Err: errors.New("slow down")}}}
	o := newTestOrchestrator(store, provider)

	started := time.Now()
	require.NoError(t, o.embedAndStore(context.Background(), "local", chunks))
	elapsed := time.Since(started)

	assert.Equal(t, 2, provider.calls, "rate-limited then success means exactly two calls")
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond, "must wait at least the provider's Retry-After")
}
