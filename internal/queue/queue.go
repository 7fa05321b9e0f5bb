// Package queue implements the Task Coordinator: a bounded, single-consumer
// FIFO queue of indexing events with backpressure and Prometheus-exposed
// stats, consumed by the Indexing Coordinator.
package queue

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventKind distinguishes a filesystem change's effect on the queue's
// backpressure policy: modified events may be dropped under pressure,
// deleted events never are.
type EventKind int

const (
	// KindModified covers file creation and content changes.
	KindModified EventKind = iota
	// KindDeleted covers file and directory removal.
	KindDeleted
)

func (k EventKind) String() string {
	if k == KindDeleted {
		return "deleted"
	}
	return "modified"
}

// Event is one unit of work submitted to the queue.
type Event struct {
	Path string
	Kind EventKind
}

// Metrics are the Prometheus collectors backing the queue's stats, named per
// the task coordinator's external contract.
type Metrics struct {
	Depth     prometheus.Gauge
	InFlight  prometheus.Gauge
	Completed prometheus.Counter
	Failed    prometheus.Counter
}

// NewMetrics registers the queue's collectors against reg. Pass
// prometheus.DefaultRegisterer in production, a fresh prometheus.NewRegistry
// in tests to avoid duplicate-registration panics across test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Depth: f.NewGauge(prometheus.GaugeOpts{
			Name: "codesearchd_queue_depth",
			Help: "Number of events currently queued, awaiting processing.",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "codesearchd_queue_in_flight",
			Help: "Number of events currently being processed (0 or 1, single consumer).",
		}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "codesearchd_queue_completed_total",
			Help: "Total number of events successfully processed.",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name: "codesearchd_queue_failed_total",
			Help: "Total number of events whose processing failed.",
		}),
	}
}

// Stats is a point-in-time snapshot of queue state, for get_stats/health
// reporting independent of Prometheus scraping.
type Stats struct {
	Queued    int
	InFlight  bool
	Completed int64
	Failed    int64
	LastError string
}

// Queue is a bounded FIFO of Events with a single consumer. Capacity bounds
// memory under a processing backlog; once full, enqueueing a KindModified
// event drops the oldest queued KindModified event to make room (never a
// KindDeleted event), and enqueueing a KindDeleted event always succeeds by
// dropping the oldest droppable (KindModified) entry if necessary.
type Queue struct {
	mu       sync.Mutex
	items    []Event
	capacity int
	notEmpty chan struct{}

	metrics *Metrics

	statsMu   sync.RWMutex
	inFlight  bool
	completed int64
	failed    int64
	lastError string
}

// New creates a Queue bounded to capacity, reporting to metrics (which may
// be nil to disable Prometheus reporting, e.g. in unit tests that don't
// care about it).
func New(capacity int, metrics *Metrics) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		metrics:  metrics,
	}
}

// Enqueue adds an event, applying drop-oldest backpressure when full.
// Non-blocking: always returns immediately.
func (q *Queue) Enqueue(evt Event) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.dropOldestModifiedLocked()
	}
	q.items = append(q.items, evt)
	depth := len(q.items)
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.Depth.Set(float64(depth))
	}

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// dropOldestModifiedLocked removes the oldest KindModified event to make
// room for a new arrival. Must be called with q.mu held. If every queued
// event is KindDeleted, nothing is dropped and the new arrival is appended
// anyway, so the queue grows past capacity by one event per such arrival —
// deletions are never dropped.
func (q *Queue) dropOldestModifiedLocked() {
	for i, evt := range q.items {
		if evt.Kind == KindModified {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Dequeue blocks until an event is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			evt := q.items[0]
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()

			if q.metrics != nil {
				q.metrics.Depth.Set(float64(depth))
				q.metrics.InFlight.Set(1)
			}
			q.setInFlight(true)
			return evt, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-q.notEmpty:
		}
	}
}

// MarkCompleted records a successfully processed event.
func (q *Queue) MarkCompleted() {
	q.setInFlight(false)
	q.statsMu.Lock()
	q.completed++
	q.statsMu.Unlock()
	if q.metrics != nil {
		q.metrics.InFlight.Set(0)
		q.metrics.Completed.Inc()
	}
}

// MarkFailed records an event whose processing failed: a parse error, an
// unclassified error, or a retryable error whose retry budget is exhausted.
func (q *Queue) MarkFailed(err error) {
	q.setInFlight(false)
	q.statsMu.Lock()
	q.failed++
	if err != nil {
		q.lastError = err.Error()
	}
	q.statsMu.Unlock()
	if q.metrics != nil {
		q.metrics.InFlight.Set(0)
		q.metrics.Failed.Inc()
	}
}

func (q *Queue) setInFlight(v bool) {
	q.statsMu.Lock()
	q.inFlight = v
	q.statsMu.Unlock()
}

// Stats returns a snapshot of the queue's current state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := len(q.items)
	q.mu.Unlock()

	q.statsMu.RLock()
	defer q.statsMu.RUnlock()
	return Stats{
		Queued:    depth,
		InFlight:  q.inFlight,
		Completed: q.completed,
		Failed:    q.failed,
		LastError: q.lastError,
	}
}
