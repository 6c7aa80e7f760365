package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingPrinter struct {
	lines []string
}

func (p *recordingPrinter) Printf(format string, a ...any) (int, error) {
	p.lines = append(p.lines, format)
	return 0, nil
}

func TestPrintQueue_DropsOldestWhenFull(t *testing.T) {
	printer := &recordingPrinter{}
	q := NewPrintQueue(printer)

	for i := 0; i < printQueueCapacity+3; i++ {
		q.Enqueue(string(rune('a' + i)))
	}

	assert.Equal(t, printQueueCapacity, q.Len())
}

func TestPrintQueue_RateLimitsEmission(t *testing.T) {
	printer := &recordingPrinter{}
	q := NewPrintQueue(printer)
	now := time.Now()

	q.Enqueue("one")
	q.Enqueue("two")

	q.Process(now)
	assert.Equal(t, 1, len(printer.lines))
	assert.Equal(t, 1, q.Len())

	q.Process(now.Add(minInterEmissionGap / 2))
	assert.Equal(t, 1, len(printer.lines), "emission before the gap elapses must be suppressed")

	q.Process(now.Add(minInterEmissionGap))
	assert.Equal(t, 2, len(printer.lines))
	assert.Equal(t, 0, q.Len())
}

func TestPrintQueue_ProcessOnEmptyIsNoop(t *testing.T) {
	printer := &recordingPrinter{}
	q := NewPrintQueue(printer)
	q.Process(time.Now())
	assert.Empty(t, printer.lines)
}
