// Package servo implements the slew-rate-limited mechanical mapper: it
// moves the regulator servo toward a commanded target at a rate derived
// from the configured travel time, with an emergency bypass and a
// whistle-position preset.
package servo

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keskad/locosteam/pkgs/events"
	"github.com/keskad/locosteam/pkgs/hal"
)

// jitterIdleAfter is the motion-absence duration after which PWM drive is
// cut to eliminate holding current.
const jitterIdleAfter = 2 * time.Second

// Mapper owns the actuator state for the regulator servo.
type Mapper struct {
	driver hal.ServoDriver
	ring   *events.Ring

	travelTimeMS float64
	neutralPct   float64
	maxPct       float64
	whistleDeg   float64

	current         float64
	target          float64
	emergencyBypass bool
	idleSince       time.Time
	lastMoveAt      time.Time
	cut             bool
}

// New returns a Mapper parked at the closed (neutral) position.
func New(driver hal.ServoDriver, ring *events.Ring, travelTimeMS, neutralPct, maxPct, whistleDeg float64) *Mapper {
	return &Mapper{
		driver:       driver,
		ring:         ring,
		travelTimeMS: travelTimeMS,
		neutralPct:   neutralPct,
		maxPct:       maxPct,
		whistleDeg:   whistleDeg,
	}
}

// SetTravelTimeMS applies a live CV update (parameter 49).
func (m *Mapper) SetTravelTimeMS(ms float64) {
	if ms > 0 {
		m.travelTimeMS = ms
	}
}

// SetGoal sets the commanded position. When whistle is true, the target is
// computed from neutral plus the configured whistle offset, scaled into the
// servo's travel range; otherwise pct (0..100 regulator openness) is
// clamped and used directly.
func (m *Mapper) SetGoal(pct float64, whistle bool, now time.Time) {
	if whistle {
		m.target = m.neutralPct + m.whistleDeg*(m.maxPct-m.neutralPct)/90.0
	} else {
		m.target = clamp(pct, 0, 100)
	}
	if m.target != m.current {
		m.lastMoveAt = now
		m.cut = false
	}
}

// SetEmergencyBypass arms the bypass: the next Update snaps current to
// target immediately and clears the flag.
func (m *Mapper) SetEmergencyBypass() {
	m.emergencyBypass = true
}

// Update runs one 20 ms tick of slew-rate-limited motion.
func (m *Mapper) Update(now time.Time, tickMS float64) {
	if m.emergencyBypass {
		m.current = m.target
		m.emergencyBypass = false
		if err := m.write(); err != nil {
			m.faultToClosed()
		}
		m.lastMoveAt = now
		return
	}

	maxStep := (100.0 / m.travelTimeMS) * tickMS
	if m.current != m.target {
		m.lastMoveAt = now
		delta := m.target - m.current
		if delta > maxStep {
			delta = maxStep
		} else if delta < -maxStep {
			delta = -maxStep
		}
		m.current += delta
	}

	if m.current == m.target && now.Sub(m.lastMoveAt) >= jitterIdleAfter {
		if !m.cut {
			m.cut = true
			if err := m.driver.Cut(); err != nil {
				m.faultToClosed()
			}
		}
		return
	}

	if err := m.write(); err != nil {
		m.faultToClosed()
	}
}

func (m *Mapper) write() error {
	m.cut = false
	return m.driver.SetDuty(m.current)
}

// faultToClosed forces the closed position and logs a HIGH-priority event
// whenever the underlying driver reports a write failure.
func (m *Mapper) faultToClosed() {
	m.current = m.neutralPct
	m.target = m.neutralPct
	logrus.Error("servo driver failure, forcing closed position")
	if m.ring != nil {
		m.ring.Append(events.KindServoFault, "servo driver failure, forced closed", time.Now())
	}
}

// Current returns the current position for telemetry.
func (m *Mapper) Current() float64 { return m.current }

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
