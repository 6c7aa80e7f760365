package workers

import (
	"time"

	"github.com/keskad/locosteam/pkgs/hal"
)

// fileQueueCapacity bounds the write backlog.
const fileQueueCapacity = 5

// minWriteGap bounds how often a write actually reaches the backing store,
// protecting flash wear: writes queue up and drain at this rate regardless
// of how fast the control loop enqueues them.
const minWriteGap = 100 * time.Millisecond

// WritePriority distinguishes a HIGH class (event-trail flushes, CV saves)
// from a LOW class (routine telemetry snapshots), so the HIGH class can
// evict LOW entries instead of its own.
type WritePriority int

const (
	WriteLow WritePriority = iota
	WriteHigh
)

type writeJob struct {
	priority WritePriority
	path     string
	data     []byte
}

// FileWriteQueue is a bounded, priority-aware queue of deferred writes
// against a Persistence backend. A full queue evicts the oldest LOW job to
// make room for an incoming HIGH job; if no LOW job exists the incoming job
// is dropped rather than evicting another HIGH job.
type FileWriteQueue struct {
	store    hal.Persistence
	jobs     []writeJob
	lastSent time.Time
}

// NewFileWriteQueue returns a FileWriteQueue backed by store.
func NewFileWriteQueue(store hal.Persistence) *FileWriteQueue {
	return &FileWriteQueue{store: store}
}

// Enqueue schedules a write of data to path at the given priority.
func (q *FileWriteQueue) Enqueue(priority WritePriority, path string, data []byte) {
	if len(q.jobs) >= fileQueueCapacity {
		if priority == WriteHigh {
			if !q.evictOldestLow() {
				return
			}
		} else {
			return
		}
	}
	q.jobs = append(q.jobs, writeJob{priority: priority, path: path, data: data})
}

func (q *FileWriteQueue) evictOldestLow() bool {
	for i, j := range q.jobs {
		if j.priority == WriteLow {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// Process writes out at most one job, HIGH-priority jobs first, no more
// often than minWriteGap.
func (q *FileWriteQueue) Process(now time.Time) error {
	if len(q.jobs) == 0 {
		return nil
	}
	if !q.lastSent.IsZero() && now.Sub(q.lastSent) < minWriteGap {
		return nil
	}
	idx := 0
	for i, j := range q.jobs {
		if j.priority == WriteHigh {
			idx = i
			break
		}
	}
	job := q.jobs[idx]
	q.jobs = append(q.jobs[:idx], q.jobs[idx+1:]...)
	q.lastSent = now
	return q.store.WriteFile(job.path, job.data)
}

// Len reports the number of queued jobs.
func (q *FileWriteQueue) Len() int { return len(q.jobs) }
