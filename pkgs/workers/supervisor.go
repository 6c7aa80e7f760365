package workers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keskad/locosteam/pkgs/hal"
)

// Supervisor runs the handful of goroutines that sit outside the
// single-threaded control loop: the wheel-encoder ISR and the wireless
// link's receive path. Both are asynchronous producers the loop only ever
// reads from through an atomic snapshot or a bounded queue (§5); Supervisor
// exists purely to start and stop the simulated stand-ins for those
// producers together, the same way an errgroup.Group is used elsewhere in
// the pack to fan background work in and out of a parent context.
type Supervisor struct {
	g   *errgroup.Group
	ctx context.Context
}

// NewSupervisor derives a cancellable group from ctx; cancelling ctx (or any
// supervised goroutine returning an error) stops every other goroutine.
func NewSupervisor(ctx context.Context) *Supervisor {
	g, gctx := errgroup.WithContext(ctx)
	return &Supervisor{g: g, ctx: gctx}
}

// SimulateEncoder stands in for the wheel-encoder interrupt handler: it
// advances the simulated pulse counter by pulsesPerTick every period until
// the supervisor's context is cancelled. Real hardware increments the
// counter from an ISR with no goroutine involved at all; this is the
// demo harness's only substitute for that.
func (s *Supervisor) SimulateEncoder(encoder *hal.SimulatedEncoder, pulsesPerTick uint32, period time.Duration) {
	s.g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return nil
			case <-ticker.C:
				encoder.Advance(pulsesPerTick)
			}
		}
	})
}

// Watch runs fn under the supervised group, passing it the group's
// cancellable context. It is the hook for a link RX stand-in (on real
// hardware a goroutine blocks in a UART read syscall and feeds bytes into
// the transport's buffer); lococtl run does not start one.
func (s *Supervisor) Watch(fn func(ctx context.Context) error) {
	s.g.Go(func() error { return fn(s.ctx) })
}

// Wait blocks until every supervised goroutine has returned, surfacing the
// first real error. A plain context cancellation (the normal shutdown path)
// is not reported as a failure.
func (s *Supervisor) Wait() error {
	if err := s.g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
