// Package telemetry implements the wireless short-range serial link's
// non-blocking outbound frame queue and inbound command queue (§4.10): a
// drop-oldest outbound FIFO, a bounded RX accumulation buffer, and a
// drop-oldest inbound command FIFO, all driven once per control-loop tick.
package telemetry

import (
	"bytes"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/keskad/locosteam/pkgs/hal"
)

// outboundCapacity bounds the outbound frame backlog; oldest frames are
// dropped once full so a stalled transport never grows memory unbounded.
const outboundCapacity = 10

// inboundCapacity bounds the decoded-command backlog.
const inboundCapacity = 16

// rxBufferCapacity is the maximum size of the not-yet-newline-terminated
// accumulation buffer; once exceeded, the most recent rxBufferCapacity
// bytes are retained (drop-oldest), matching §6's wire contract.
const rxBufferCapacity = 128

// Link owns the outbound frame queue and the inbound command queue for the
// wireless link. It never blocks: Process sends at most one frame per call,
// PollInbound and PopCommand never wait on the transport.
type Link struct {
	io hal.LinkIO

	outbound []string

	rxBuf   []byte
	inbound []string
}

// New returns a Link driving io.
func New(io hal.LinkIO) *Link {
	return &Link{io: io}
}

// EnqueueFrame appends frame to the outbound queue, dropping the oldest
// queued frame if it is already at capacity. O(1).
func (l *Link) EnqueueFrame(frame string) {
	if len(l.outbound) >= outboundCapacity {
		l.outbound = l.outbound[1:]
	}
	l.outbound = append(l.outbound, frame)
}

// Process sends at most one queued outbound frame. A transport failure is
// logged and the frame is dropped; it never blocks and never retries.
func (l *Link) Process() {
	if len(l.outbound) == 0 {
		return
	}
	frame := l.outbound[0]
	l.outbound = l.outbound[1:]
	if err := l.io.SendLine(frame); err != nil {
		logrus.WithError(err).Warn("telemetry frame send failed, dropping")
	}
}

// PollInbound drains whatever bytes the transport currently has buffered,
// appends them to the RX accumulation buffer (retaining only the most
// recent rxBufferCapacity bytes on overflow), and pushes every completed
// (newline-terminated) line onto the inbound command queue. Lines that are
// not valid UTF-8 are dropped; the buffer is never allowed to block a read.
func (l *Link) PollInbound() {
	data := l.io.ReadAvailable()
	if len(data) == 0 {
		return
	}

	l.rxBuf = append(l.rxBuf, data...)
	if len(l.rxBuf) > rxBufferCapacity {
		l.rxBuf = l.rxBuf[len(l.rxBuf)-rxBufferCapacity:]
	}

	for {
		idx := bytes.IndexByte(l.rxBuf, '\n')
		if idx < 0 {
			break
		}
		line := l.rxBuf[:idx]
		l.rxBuf = l.rxBuf[idx+1:]

		if !utf8.Valid(line) {
			logrus.Warn("dropping non-UTF-8 inbound line")
			continue
		}
		l.pushCommand(string(line))
	}
}

func (l *Link) pushCommand(line string) {
	if len(l.inbound) >= inboundCapacity {
		l.inbound = l.inbound[1:]
	}
	l.inbound = append(l.inbound, line)
}

// PopCommand removes and returns the oldest queued inbound line, if any.
func (l *Link) PopCommand() (string, bool) {
	if len(l.inbound) == 0 {
		return "", false
	}
	line := l.inbound[0]
	l.inbound = l.inbound[1:]
	return line, true
}

// OutboundLen reports the number of frames currently queued, for tests.
func (l *Link) OutboundLen() int { return len(l.outbound) }

// InboundLen reports the number of decoded commands currently queued.
func (l *Link) InboundLen() int { return len(l.inbound) }
