package watchdog

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keskad/locosteam/pkgs/events"
	"github.com/keskad/locosteam/pkgs/hal"
)

// Hooks wires the orchestrator to the rest of the control core without
// importing pressure/servo/control directly, avoiding an import cycle back into
// the packages that decide when to call Shutdown.
type Hooks struct {
	DisableHeaters func()
	ServoToWhistle func()
	ServoToClosed  func()
	ServoCut       func()
	PersistEvents  func() error
	DeepSleep      func()
	Clock          hal.Clock
}

// Orchestrator drives the graduated emergency shutdown and the separate
// operator E-STOP path. A single guard latch makes both paths idempotent:
// once a shutdown is underway, further calls are no-ops.
type Orchestrator struct {
	hooks Hooks
	ring  *events.Ring

	mu      sync.Mutex
	latched bool
}

// NewOrchestrator builds an Orchestrator. ring may be nil in tests that do
// not care about the persisted trail.
func NewOrchestrator(hooks Hooks, ring *events.Ring) *Orchestrator {
	return &Orchestrator{hooks: hooks, ring: ring}
}

// IsShuttingDown reports whether a shutdown has already latched.
func (o *Orchestrator) IsShuttingDown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latched
}

// Shutdown runs the six-stage graduated emergency shutdown: heaters off,
// servo to the whistle position while the event trail is flushed in the
// background, then fully closed, then PWM cut, then a terminal deep sleep.
// The second and later calls, for any cause, are no-ops.
func (o *Orchestrator) Shutdown(cause Cause) {
	o.mu.Lock()
	if o.latched {
		o.mu.Unlock()
		return
	}
	o.latched = true
	o.mu.Unlock()

	logrus.WithField("cause", cause.String()).Error("emergency shutdown")
	if o.ring != nil {
		o.ring.Append(events.KindShutdown, cause.String(), o.hooks.Clock.Now())
	}

	// Stage 1: heaters off, must complete within a few milliseconds.
	o.hooks.DisableHeaters()

	// Stage 2: servo to the whistle position, bypassing the slew limiter.
	o.hooks.ServoToWhistle()

	// Stage 3: best-effort event persistence runs concurrently with the
	// 5 s dwell so a slow disk write never delays the mechanical stages.
	persisted := make(chan struct{})
	go func() {
		defer close(persisted)
		if o.hooks.PersistEvents == nil {
			return
		}
		if err := o.hooks.PersistEvents(); err != nil {
			logrus.WithError(err).Warn("event trail persistence failed during shutdown")
		}
	}()
	o.hooks.Clock.Sleep(5 * time.Second)
	<-persisted

	// Stage 4: servo fully closed.
	o.hooks.ServoToClosed()
	o.hooks.Clock.Sleep(500 * time.Millisecond)

	// Stage 5: cut PWM drive entirely.
	o.hooks.ServoCut()

	// Stage 6: terminal deep sleep; nothing after this runs.
	o.hooks.DeepSleep()
}

// ForceClose runs the single-stage operator E-STOP path: the servo snaps to
// the closed position immediately. It does not touch heaters, does not
// flush the event trail, and does not enter deep sleep, since the operator
// may clear the stop and resume. It is a no-op once the graduated shutdown
// has latched.
func (o *Orchestrator) ForceClose(now time.Time) {
	if o.IsShuttingDown() {
		return
	}
	o.hooks.ServoToClosed()
	if o.ring != nil {
		o.ring.Append(events.KindForceClose, UserEStop.String(), now)
	}
}

// ResetForTest clears the guard latch. Production shutdown is terminal
// (DeepSleep never returns); this exists only so tests can exercise the
// idempotence guard without a process restart per case.
func (o *Orchestrator) ResetForTest() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latched = false
}
