package embedding

// Test Plan for adaptiveBatcher:
// - A fast batch (latency well under target) grows the next size
// - A slow batch (latency over target) shrinks the next size
// - Size never leaves the configured [min, max] bounds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codesearchd/codesearchd/internal/config"
)

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{Min: 4, Initial: 10, Max: 40, Growth: 1.5, Shrink: 0.5}
}

func TestAdaptiveBatcher_FastLatencyGrows(t *testing.T) {
	t.Parallel()
	b := newAdaptiveBatcher(testBatchConfig())
	b.Record(100 * time.Millisecond)
	assert.Equal(t, 15, b.Next())
}

func TestAdaptiveBatcher_SlowLatencyShrinks(t *testing.T) {
	t.Parallel()
	b := newAdaptiveBatcher(testBatchConfig())
	b.Record(5 * time.Second)
	assert.Equal(t, 5, b.Next())
}

func TestAdaptiveBatcher_NeverExceedsBounds(t *testing.T) {
	t.Parallel()
	b := newAdaptiveBatcher(testBatchConfig())
	for i := 0; i < 20; i++ {
		b.Record(10 * time.Millisecond)
		assert.LessOrEqual(t, b.Next(), 40)
	}

	b2 := newAdaptiveBatcher(testBatchConfig())
	for i := 0; i < 20; i++ {
		b2.Record(10 * time.Second)
		assert.GreaterOrEqual(t, b2.Next(), 4)
	}
}
