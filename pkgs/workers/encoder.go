package workers

import (
	"time"

	"github.com/keskad/locosteam/pkgs/hal"
)

// encoderMinDeltaT is the minimum elapsed time between two velocity samples;
// below it the pulse count is too small to divide by without amplifying
// jitter into a wildly noisy reported speed.
const encoderMinDeltaT = 100 * time.Millisecond

// EncoderTracker derives a model velocity from the ISR-incremented wheel
// pulse counter. The counter itself is written from interrupt context; this
// tracker only ever reads it and keeps its own previous-sample state.
type EncoderTracker struct {
	driver hal.EncoderDriver

	haveSample bool
	lastCount  uint32
	lastAt     time.Time
	lastValue  float64
}

// NewEncoderTracker returns a tracker reading from driver.
func NewEncoderTracker(driver hal.EncoderDriver) *EncoderTracker {
	return &EncoderTracker{driver: driver}
}

// Velocity returns the measured wheel velocity in cm/s at now. It only
// resamples the counter once encoderMinDeltaT has elapsed since the last
// sample; called more often than that, it returns the previous value to
// suppress single-tick jitter in the derivative.
func (e *EncoderTracker) Velocity(now time.Time) float64 {
	count := e.driver.Count()

	if !e.haveSample {
		e.haveSample = true
		e.lastCount = count
		e.lastAt = now
		return 0
	}

	dt := now.Sub(e.lastAt)
	if dt < encoderMinDeltaT {
		return e.lastValue
	}

	deltaCount := count - e.lastCount // uint32 wraparound-safe subtraction
	circumference := e.driver.WheelCircumferenceCM()
	velocity := float64(deltaCount) * circumference / dt.Seconds()

	e.lastCount = count
	e.lastAt = now
	e.lastValue = velocity
	return velocity
}
