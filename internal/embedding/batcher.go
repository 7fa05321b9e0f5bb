package embedding

import (
	"time"

	"github.com/codesearchd/codesearchd/internal/config"
)

// adaptiveBatcher sizes successive embedding batches from an exponential
// moving average of observed call latency: fast batches grow (more texts
// per round trip), slow ones shrink, within the provider's configured
// bounds. Unlike the teacher's EmbedWithProgress (a fixed batch size for
// the whole run), this tracks one size across the orchestrator's lifetime
// per provider/model tuple.
type adaptiveBatcher struct {
	min, max, size int
	growth, shrink float64
	emaLatency     time.Duration
	// targetLatency is the latency an observation is compared against to
	// decide grow vs shrink; fixed rather than configurable since the
	// growth/shrink factors already give the operator the knobs they need.
	targetLatency time.Duration
}

func newAdaptiveBatcher(cfg config.BatchConfig) *adaptiveBatcher {
	size := cfg.Initial
	if size <= 0 {
		size = cfg.Min
	}
	return &adaptiveBatcher{
		min:           cfg.Min,
		max:           cfg.Max,
		size:          size,
		growth:        cfg.Growth,
		shrink:        cfg.Shrink,
		targetLatency: 2 * time.Second,
	}
}

// Next returns the batch size to use for the next round.
func (b *adaptiveBatcher) Next() int {
	return b.size
}

// Record updates the size estimate from one completed batch's latency. A
// failed batch should not call Record — the caller retries the same size.
func (b *adaptiveBatcher) Record(latency time.Duration) {
	const emaWeight = 0.3
	if b.emaLatency == 0 {
		b.emaLatency = latency
	} else {
		b.emaLatency = time.Duration(float64(b.emaLatency)*(1-emaWeight) + float64(latency)*emaWeight)
	}

	next := b.size
	if b.emaLatency < b.targetLatency/2 {
		next = int(float64(b.size) * b.growth)
	} else if b.emaLatency > b.targetLatency {
		next = int(float64(b.size) * b.shrink)
	}
	if next < b.min {
		next = b.min
	}
	if next > b.max {
		next = b.max
	}
	if next < 1 {
		next = 1
	}
	b.size = next
}
