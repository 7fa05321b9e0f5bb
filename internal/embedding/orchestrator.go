package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/storage"
)

// sentinelText substitutes for a chunk whose code is empty or entirely
// whitespace: some providers reject empty strings outright, and embedding
// nothing meaningfully is itself meaningful information to preserve rather
// than skip.
const sentinelText = "∅"

const embedMaxRetries = 3

// providerCooldown is how long a provider is skipped after a Fatal error,
// rather than retried on every subsequent batch while it's clearly down.
const providerCooldown = 30 * time.Second

// tupleKey identifies one (provider, model) pair for the orchestrator's
// single-in-flight-batch guard — independent of Tuple.TableName(), which
// also encodes dimension and isn't needed for mutex identity.
type tupleKey struct {
	provider string
	model    string
}

// Orchestrator drives embedding generation for every configured provider,
// enforcing at most one in-flight batch per (provider, model) so a slow
// provider can't be hammered by concurrent callers.
type Orchestrator struct {
	log   *zap.Logger
	store *storage.ChunkStore

	providers map[string]Provider
	tuples    map[string]storage.Tuple // provider name -> its configured Tuple
	charCaps  map[string]int           // provider name -> char_cap

	mu        sync.Mutex
	inFlight  map[tupleKey]*sync.Mutex
	batchers  map[tupleKey]*adaptiveBatcher
	cooldowns map[string]time.Time // provider name -> cooled off until
}

// New builds an Orchestrator from the embedding section of the merged
// configuration, constructing one HTTP provider per configured entry.
func New(log *zap.Logger, store *storage.ChunkStore, cfg config.EmbeddingConfig) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		log:       log,
		store:     store,
		providers: make(map[string]Provider),
		tuples:    make(map[string]storage.Tuple),
		charCaps:  make(map[string]int),
		inFlight:  make(map[tupleKey]*sync.Mutex),
		batchers:  make(map[tupleKey]*adaptiveBatcher),
		cooldowns: make(map[string]time.Time),
	}
	for name, pc := range cfg.Providers {
		o.providers[name] = NewHTTPProvider(pc)
		o.tuples[name] = storage.Tuple{Provider: name, Model: pc.Model, Dim: pc.Dim, Distance: pc.Distance}
		o.charCaps[name] = pc.CharCap
		o.batchers[tupleKey{name, pc.Model}] = newAdaptiveBatcher(pc.Batch)
	}
	return o
}

// EnqueueChunkIDs embeds a freshly added set of chunk ids against the
// default provider — the Indexing Coordinator's onAdded hook. Errors are
// logged rather than returned: a chunk without an embedding yet is still
// searchable by regex, and PendingChunksForTuple lets a later backfill
// catch it up.
func (o *Orchestrator) EnqueueChunkIDs(defaultProvider string, chunkIDs []int64) {
	chunks, err := o.store.ChunksByIDs(chunkIDs)
	if err != nil {
		o.log.Error("load chunks for embedding", zap.Error(err))
		return
	}
	if err := o.embedAndStore(context.Background(), defaultProvider, chunks); err != nil {
		o.log.Error("embed newly added chunks", zap.String("provider", defaultProvider), zap.Error(err))
	}
}

// Backfill embeds every chunk lacking a vector for providerName, newest
// file first, until none remain or ctx is cancelled.
func (o *Orchestrator) Backfill(ctx context.Context, providerName string) error {
	tuple, ok := o.tuples[providerName]
	if !ok {
		return fmt.Errorf("unknown embedding provider %q", providerName)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batchSize := o.batcherFor(providerName).Next()
		chunks, err := o.store.PendingChunksForTuple(tuple, batchSize)
		if err != nil {
			return fmt.Errorf("load pending chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := o.embedAndStore(ctx, providerName, chunks); err != nil {
			return err
		}
	}
}

// EmbedQuery embeds a single query string for search_semantic, using query
// mode rather than passage mode — some providers use distinct encodings for
// the two roles even when the underlying model is shared.
func (o *Orchestrator) EmbedQuery(ctx context.Context, providerName, text string) ([]float32, error) {
	provider, ok := o.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q", providerName)
	}
	vectors, err := provider.Embed(ctx, []string{substituteEmpty(text)}, ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query for provider %s: %w", providerName, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query for provider %s: expected 1 vector, got %d", providerName, len(vectors))
	}
	return vectors[0], nil
}

// Tuple returns the configured Tuple for providerName, for callers that need
// its table name or dimension without reaching into orchestrator internals.
func (o *Orchestrator) Tuple(providerName string) (storage.Tuple, bool) {
	t, ok := o.tuples[providerName]
	return t, ok
}

// embedAndStore runs one or more batches of chunks through providerName,
// writing each batch's vectors in one all-or-nothing transaction. Batches
// beyond the first arise when the caller passed more chunks than the
// adaptive batcher's current size (batcher.Next()).
func (o *Orchestrator) embedAndStore(ctx context.Context, providerName string, chunks []storage.Chunk) error {
	provider, ok := o.providers[providerName]
	if !ok {
		return fmt.Errorf("unknown embedding provider %q", providerName)
	}
	tuple := o.tuples[providerName]
	charCap := o.charCaps[providerName]
	batcher := o.batcherFor(providerName)
	lock := o.lockFor(providerName, tuple.Model)

	lock.Lock()
	defer lock.Unlock()

	for start := 0; start < len(chunks); {
		size := batcher.Next()
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = truncate(substituteEmpty(c.Code), charCap)
		}

		rows, err := o.embedBatch(ctx, providerName, provider, batcher, batch, texts)
		if err != nil {
			return fmt.Errorf("embed batch [%d:%d) for provider %s: %w", start, end, providerName, err)
		}
		if len(rows) > 0 {
			if err := o.store.BulkInsertEmbeddings(tuple, rows); err != nil {
				return fmt.Errorf("store embeddings for provider %s: %w", providerName, err)
			}
		}

		start = end
	}
	return nil
}

// embedBatch embeds one batch and, on an InvalidInput rejection, drops the
// named indices and retries with the rest rather than failing the whole
// batch — the dropped chunks are logged as non-embeddable and simply get no
// embedding row, still searchable by regex.
func (o *Orchestrator) embedBatch(ctx context.Context, providerName string, provider Provider, batcher *adaptiveBatcher, batch []storage.Chunk, texts []string) ([]storage.EmbeddingRow, error) {
	vectors, err := o.embedWithRetry(ctx, providerName, provider, texts, batcher)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Kind == ErrInvalidInput {
			invalid := make(map[int]bool, len(perr.Indices))
			for _, i := range perr.Indices {
				if i >= 0 && i < len(batch) {
					invalid[i] = true
				}
			}

			var keptBatch []storage.Chunk
			var keptTexts []string
			var droppedIDs []int64
			for i, c := range batch {
				if invalid[i] {
					droppedIDs = append(droppedIDs, c.ID)
					continue
				}
				keptBatch = append(keptBatch, c)
				keptTexts = append(keptTexts, texts[i])
			}

			if len(droppedIDs) > 0 {
				o.log.Warn("embed provider rejected input, recording as non-embeddable",
					zap.String("provider", providerName), zap.Int64s("chunk_ids", droppedIDs))
			}
			if len(keptBatch) == 0 {
				return nil, nil
			}
			return o.embedBatch(ctx, providerName, provider, batcher, keptBatch, keptTexts)
		}
		return nil, err
	}

	rows := make([]storage.EmbeddingRow, len(batch))
	for i, c := range batch {
		rows[i] = storage.EmbeddingRow{ChunkID: c.ID, Vector: vectors[i]}
	}
	return rows, nil
}

// embedWithRetry implements the provider error taxonomy's retry policy:
// Transient retries up to embedMaxRetries with jittered backoff; RateLimited
// honors the provider's Retry-After when given, else the same backoff;
// InvalidInput is returned immediately (the caller decides what to drop);
// Fatal aborts immediately and cools the provider off.
func (o *Orchestrator) embedWithRetry(ctx context.Context, providerName string, provider Provider, texts []string, batcher *adaptiveBatcher) ([][]float32, error) {
	if until, cooling := o.coolingDown(providerName); cooling {
		return nil, fmt.Errorf("provider %s is cooling off until %s", providerName, until.Format(time.RFC3339))
	}

	var lastErr error
	for attempt := 1; attempt <= embedMaxRetries; attempt++ {
		started := time.Now()
		vectors, err := provider.Embed(ctx, texts, ModePassage)
		if err == nil {
			batcher.Record(time.Since(started))
			return vectors, nil
		}

		var perr *ProviderError
		if !errors.As(err, &perr) {
			lastErr = err
		} else {
			switch perr.Kind {
			case ErrInvalidInput:
				return nil, perr
			case ErrFatal:
				o.coolDown(providerName, providerCooldown)
				return nil, fmt.Errorf("provider %s failed fatally, cooling off for %s: %w", providerName, providerCooldown, perr)
			default:
				lastErr = perr
			}
		}

		if attempt == embedMaxRetries {
			break
		}

		wait := nextBackoffWithJitter(attempt)
		if perr != nil && perr.Kind == ErrRateLimited && perr.RetryAfter > 0 {
			wait = perr.RetryAfter
		}
		o.log.Warn("embed call failed, retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", embedMaxRetries, lastErr)
}

// coolingDown reports whether providerName is currently in its post-Fatal
// cool-off window, clearing the entry once it has elapsed.
func (o *Orchestrator) coolingDown(providerName string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	until, ok := o.cooldowns[providerName]
	if !ok {
		return time.Time{}, false
	}
	if time.Now().After(until) {
		delete(o.cooldowns, providerName)
		return time.Time{}, false
	}
	return until, true
}

func (o *Orchestrator) coolDown(providerName string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cooldowns[providerName] = time.Now().Add(d)
}

func (o *Orchestrator) lockFor(provider, model string) *sync.Mutex {
	key := tupleKey{provider, model}
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.inFlight[key]
	if !ok {
		l = &sync.Mutex{}
		o.inFlight[key] = l
	}
	return l
}

func (o *Orchestrator) batcherFor(provider string) *adaptiveBatcher {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, b := range o.batchers {
		if key.provider == provider {
			return b
		}
	}
	// Should not happen for a provider constructed by New, but degrade to a
	// reasonable default rather than panic.
	b := newAdaptiveBatcher(config.BatchConfig{Min: 1, Initial: 8, Max: 100, Growth: 1.5, Shrink: 0.5})
	return b
}

func substituteEmpty(code string) string {
	trimmed := code
	for len(trimmed) > 0 && isBlank(trimmed[0]) {
		trimmed = trimmed[1:]
	}
	if len(trimmed) == 0 {
		return sentinelText
	}
	return code
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func truncate(s string, charCap int) string {
	if charCap <= 0 || len(s) <= charCap {
		return s
	}
	return s[:charCap]
}

// nextBackoff is the base retry delay for embed call attempt (1-indexed),
// doubling from 500ms with no cap — embedding retries are rarer and
// shorter-lived than the indexing pipeline's own backoff in internal/indexer.
func nextBackoff(attempt int) time.Duration {
	delay := 500 * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// nextBackoffWithJitter applies equal jitter to nextBackoff: half the base
// delay is fixed, half is randomized, so retrying callers across many
// batches don't all wake up and hammer the provider in lockstep.
func nextBackoffWithJitter(attempt int) time.Duration {
	base := nextBackoff(attempt)
	half := base / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
