// Package workers implements the background, non-blocking helpers the
// control loop delegates to once per tick so its own per-tick budget stays
// small and deterministic: a rate-limited print queue, a priority file
// write queue, a heap-reclaim worker, a cached sensor reader and an
// encoder-derived speed tracker.
package workers

import (
	"time"

	"github.com/keskad/locosteam/pkgs/output"
)

// printQueueCapacity bounds the print backlog; oldest entries are dropped
// once full so a stalled output sink never grows memory unbounded.
const printQueueCapacity = 10

// minInterEmissionGap is the minimum spacing between two writes to the
// output sink, protecting a slow serial console from being flooded.
const minInterEmissionGap = 50 * time.Millisecond

// PrintQueue buffers lines for a slow Printer and emits at most one per
// Process call, no more often than minInterEmissionGap.
type PrintQueue struct {
	sink     output.Printer
	buf      []string
	lastSent time.Time
}

// NewPrintQueue returns a PrintQueue writing to sink.
func NewPrintQueue(sink output.Printer) *PrintQueue {
	return &PrintQueue{sink: sink}
}

// Enqueue appends line, dropping the oldest buffered line if the queue is full.
func (q *PrintQueue) Enqueue(line string) {
	if len(q.buf) >= printQueueCapacity {
		q.buf = q.buf[1:]
	}
	q.buf = append(q.buf, line)
}

// Process emits at most one queued line, only if minInterEmissionGap has
// elapsed since the last emission.
func (q *PrintQueue) Process(now time.Time) {
	if len(q.buf) == 0 {
		return
	}
	if !q.lastSent.IsZero() && now.Sub(q.lastSent) < minInterEmissionGap {
		return
	}
	line := q.buf[0]
	q.buf = q.buf[1:]
	q.sink.Printf("%s\n", line)
	q.lastSent = now
}

// Len reports the number of buffered, unemitted lines.
func (q *PrintQueue) Len() int { return len(q.buf) }
