package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/parser"
	"github.com/codesearchd/codesearchd/internal/queue"
	"github.com/codesearchd/codesearchd/internal/storage"
	"github.com/codesearchd/codesearchd/internal/watcher"
)

// Coordinator is the Indexing Coordinator: the single consumer of the Task
// Coordinator's queue. It owns every write to the Chunk Store, so all
// mutation — the initial full scan, live watcher events, and retries —
// flows through one goroutine.
type Coordinator struct {
	log      *zap.Logger
	store    *storage.ChunkStore
	registry *parser.Registry
	root     string
	disc     *discovery
	q        *queue.Queue
	onAdded  func(path string, chunkIDs []int64)

	retriesMu sync.Mutex
	retries   map[string]*retryState
}

// New builds a Coordinator rooted at root, using cfg's include/exclude
// globs and queue capacity. onAdded, if non-nil, is invoked after a file's
// chunks are successfully replaced with any newly inserted chunk ids — the
// Embedding Orchestrator's hook into the pipeline.
func New(log *zap.Logger, store *storage.ChunkStore, registry *parser.Registry, root string, cfg config.WatchConfig, queueCfg config.IndexConfig, metrics *queue.Metrics, onAdded func(path string, chunkIDs []int64)) (*Coordinator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	disc, err := newDiscovery(root, cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		log:      log,
		store:    store,
		registry: registry,
		root:     root,
		disc:     disc,
		q:        queue.New(queueCfg.QueueCapacity, metrics),
		onAdded:  onAdded,
		retries:  make(map[string]*retryState),
	}, nil
}

// Enqueue submits a watcher event, rejecting paths the configured exclude
// globs reject regardless of event source — enforced here as well as in
// the watcher itself, per the coordinator's own ingress contract.
func (c *Coordinator) Enqueue(evt watcher.Event) {
	if evt.Kind == watcher.Rescan {
		c.enqueueRescan()
		return
	}
	if c.disc.excluded(evt.Path) {
		return
	}
	c.q.Enqueue(toQueueEvent(evt))
}

func toQueueEvent(evt watcher.Event) queue.Event {
	if evt.Kind == watcher.Deleted {
		return queue.Event{Path: evt.Path, Kind: queue.KindDeleted}
	}
	return queue.Event{Path: evt.Path, Kind: queue.KindModified}
}

// enqueueRescan re-walks the whole tree and enqueues every discovered file
// as a modification; process_file's content-hash short-circuit makes this
// cheap for files that have not actually changed.
func (c *Coordinator) enqueueRescan() {
	paths, err := c.disc.walk()
	if err != nil {
		c.log.Error("rescan walk failed", zap.Error(err))
		return
	}
	for _, p := range paths {
		c.q.Enqueue(queue.Event{Path: p, Kind: queue.KindModified})
	}
}

// InitialScan walks the root directory and enqueues every matching file.
// Called once at startup, before the watcher is started, so existing files
// are indexed before any live events arrive.
func (c *Coordinator) InitialScan() error {
	paths, err := c.disc.walk()
	if err != nil {
		return err
	}
	for _, p := range paths {
		c.q.Enqueue(queue.Event{Path: p, Kind: queue.KindModified})
	}
	return nil
}

// Run drains the queue on the calling goroutine until ctx is cancelled.
// There is exactly one Run loop per Coordinator: the single-writer
// invariant falls directly out of that, not out of any locking in the
// Chunk Store itself.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		evt, ok := c.q.Dequeue(ctx)
		if !ok {
			return
		}
		c.process(evt)
	}
}

func (c *Coordinator) process(evt queue.Event) {
	if due := c.retryDue(evt.Path); !due {
		// Not yet due: put it back and let a later Dequeue pick up a
		// different event first. Re-enqueueing is cheap and keeps the
		// queue a plain FIFO without a separate timer wheel.
		c.q.MarkCompleted()
		go func() {
			time.Sleep(10 * time.Millisecond)
			c.q.Enqueue(evt)
		}()
		return
	}

	var outcome ProcessOutcome
	var err error
	if evt.Kind == queue.KindDeleted {
		outcome, err = processDeletion(c.store, evt.Path)
	} else {
		outcome, err = processFile(c.store, c.registry, c.root, evt.Path)
	}

	if err == nil {
		c.clearRetry(evt.Path)
		c.q.MarkCompleted()
		if !outcome.Unchanged && !outcome.Deleted && c.onAdded != nil && len(outcome.Added) > 0 {
			// Run off the single-writer goroutine: embedding is a network
			// call and must never block the next file's indexing.
			go c.onAdded(outcome.Path, outcome.Added)
		}
		return
	}

	perr, ok := err.(*processError)
	if !ok {
		c.log.Error("unclassified processing error", zap.String("path", evt.Path), zap.Error(err))
		c.q.MarkFailed(err)
		return
	}

	switch perr.kind {
	case FailureParse:
		c.log.Warn("parse error, leaving file as-is until next edit",
			zap.String("path", evt.Path), zap.Error(perr.err))
		if perr.fileID != 0 {
			_ = c.store.RecordFailure(perr.fileID, string(FailureParse), perr.err.Error(), 1)
		}
		c.clearRetry(evt.Path)
		c.q.MarkFailed(perr.err)

	case FailureDatabase, FailureIO:
		attempt := c.bumpRetry(evt.Path)
		if attempt > backoffMaxTry {
			c.log.Error("giving up after repeated failures",
				zap.String("path", evt.Path), zap.Int("attempts", attempt-1), zap.Error(perr.err))
			if perr.fileID != 0 {
				_ = c.store.RecordFailure(perr.fileID, string(perr.kind), perr.err.Error(), attempt-1)
			}
			c.clearRetry(evt.Path)
			c.q.MarkFailed(perr.err)
			return
		}
		delay := nextBackoff(attempt)
		c.log.Warn("retrying after failure",
			zap.String("path", evt.Path), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(perr.err))
		go func() {
			time.Sleep(delay)
			c.q.Enqueue(evt)
		}()
	}
}

// retryDue reports whether evt.Path has no pending backoff, or its backoff
// window has elapsed.
func (c *Coordinator) retryDue(path string) bool {
	c.retriesMu.Lock()
	defer c.retriesMu.Unlock()
	state, ok := c.retries[path]
	if !ok {
		return true
	}
	return !time.Now().Before(state.nextRetry)
}

func (c *Coordinator) bumpRetry(path string) int {
	c.retriesMu.Lock()
	defer c.retriesMu.Unlock()
	state, ok := c.retries[path]
	if !ok {
		state = &retryState{}
		c.retries[path] = state
	}
	state.attempt++
	state.nextRetry = time.Now().Add(nextBackoff(state.attempt))
	return state.attempt
}

func (c *Coordinator) clearRetry(path string) {
	c.retriesMu.Lock()
	delete(c.retries, path)
	c.retriesMu.Unlock()
}

// Stats exposes the queue's stats snapshot for get_stats/health reporting.
func (c *Coordinator) Stats() queue.Stats {
	return c.q.Stats()
}
