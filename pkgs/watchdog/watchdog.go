// Package watchdog implements the multi-vector safety monitor and the
// graduated emergency-shutdown orchestrator. The invariant checks run in
// a fixed order; the first failing check wins.
package watchdog

import (
	"time"

	"github.com/keskad/locosteam/pkgs/sensors"
)

// Inputs bundles everything Check needs for one tick. All fields are plain
// values or immutable snapshots handed in by the orchestrator — the
// watchdog never reaches out to another component's mutable state.
type Inputs struct {
	Now time.Time

	Temps       sensors.Temps
	SensorHealth map[sensors.Channel]sensors.HealthSnapshot

	CurrentSpeedCMS float64

	LastValidDCC time.Time
	DCCTimeout   time.Duration

	TrackVoltageMV    int
	TrackVoltageMinMV int
	TrackVoltageTimeout time.Duration

	FreeHeapBytes int

	LogicLimitC  float64
	BoilerLimitC float64
	SuperLimitC  float64

	DegradedTimeout time.Duration
}

// Watchdog holds the mode state machine and the low-voltage dwell timer.
// Only the orchestrator drives Check; demotion DEGRADED->NOMINAL happens
// automatically once the underlying channel recovers.
type Watchdog struct {
	mode            Mode
	lowVoltageSince time.Time
}

// New returns a Watchdog starting in NOMINAL.
func New() *Watchdog {
	return &Watchdog{}
}

// Mode returns the current operating mode.
func (w *Watchdog) Mode() Mode {
	return w.mode
}

// Check screens the invariants in the mandated order and returns the first
// failing cause, or None if every invariant holds. Promotion to CRITICAL and
// the DEGRADED mode transitions are applied as a side effect on w.
func (w *Watchdog) Check(in Inputs) Cause {
	degradedCount := 0
	for _, h := range in.SensorHealth {
		if h.Health == sensors.Degraded {
			degradedCount++
		}
	}

	// 1. Multiple channels DEGRADED simultaneously => CRITICAL_SENSOR.
	if degradedCount >= 2 {
		w.mode = Mode{Kind: Critical}
		return CriticalSensor
	}

	// 2. Exactly one channel DEGRADED => enter/stay DEGRADED.
	if degradedCount == 1 {
		if w.mode.Kind != Degraded {
			w.mode = Mode{Kind: Degraded, EnteredAt: in.Now, InitialSpeedCMS: in.CurrentSpeedCMS}
		}
		if in.Now.Sub(w.mode.EnteredAt) > in.DegradedTimeout {
			return DegradedTimeout
		}
		// 3. Skip thermal checks while DEGRADED; signal/power still apply.
		return w.checkSignalAndPower(in)
	}

	// Demotion: no channel degraded, return to NOMINAL if we were DEGRADED.
	if w.mode.Kind == Degraded {
		w.mode = Mode{Kind: Nominal}
	}

	// 4-6. Thermal invariants, strict '>' so the exact limit does not fire.
	if in.Temps.Logic > in.LogicLimitC {
		return LogicHot
	}
	if in.Temps.Boiler > in.BoilerLimitC {
		return DryBoil
	}
	if in.Temps.Superheater > in.SuperLimitC {
		return SuperHot
	}

	return w.checkSignalAndPower(in)
}

// checkSignalAndPower implements invariants 7-9: DCC loss, track
// under-voltage dwell, and free-heap exhaustion.
func (w *Watchdog) checkSignalAndPower(in Inputs) Cause {
	// 7. DCC signal loss.
	if in.Now.Sub(in.LastValidDCC) > in.DCCTimeout {
		return DCCLost
	}

	// 8. Track under-voltage, with a dwell timer the watchdog itself owns
	// since this is state that must persist across ticks.
	if in.TrackVoltageMV < in.TrackVoltageMinMV {
		if w.lowVoltageSince.IsZero() {
			w.lowVoltageSince = in.Now
		}
		if in.Now.Sub(w.lowVoltageSince) > in.TrackVoltageTimeout {
			return PwrLoss
		}
	} else {
		w.lowVoltageSince = time.Time{}
	}

	// 9. Free heap.
	const minFreeHeapBytes = 5 * 1024
	if in.FreeHeapBytes < minFreeHeapBytes {
		return MemoryExhaustion
	}

	return None
}
