package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeapWorker_CriticalThresholdAlwaysReclaims(t *testing.T) {
	calls := 0
	w := NewHeapWorker(func() { calls++ }, 0)

	now := time.Now()
	w.Tick(1024, now)
	w.Tick(1024, now) // back-to-back critical calls both reclaim, no rate limit

	assert.Equal(t, 2, calls)
}

func TestHeapWorker_NormalThresholdIsRateLimited(t *testing.T) {
	calls := 0
	w := NewHeapWorker(func() { calls++ }, 100*1024)

	now := time.Now()
	w.Tick(50*1024, now)
	assert.Equal(t, 1, calls)

	w.Tick(50*1024, now.Add(100*time.Millisecond))
	assert.Equal(t, 1, calls, "a second pass within normalRateLimit must be suppressed")

	w.Tick(50*1024, now.Add(normalRateLimit+time.Millisecond))
	assert.Equal(t, 2, calls)
}

func TestHeapWorker_AboveThresholdNeverReclaims(t *testing.T) {
	calls := 0
	w := NewHeapWorker(func() { calls++ }, 50*1024)

	w.Tick(200*1024, time.Now())
	assert.Equal(t, 0, calls)
}

func TestHeapWorker_ZeroThresholdUsesDefault(t *testing.T) {
	calls := 0
	w := NewHeapWorker(func() { calls++ }, 0)
	assert.Equal(t, defaultReclaimThresholdBytes, w.threshold)

	w.Tick(defaultReclaimThresholdBytes-1, time.Now())
	assert.Equal(t, 1, calls)
}
