// Package pressure implements the boiler pressure PID controller:
// error = target - current, anti-windup by clamping the integral
// term whenever the output saturates, output split across two heater PWM
// channels.
package pressure

import (
	"github.com/keskad/locosteam/pkgs/hal"
)

// Controller owns the PID integrator/last-error state and the two heater
// actuator handles. Output is strictly 0 whenever Enabled is false, which
// is the state on boot and after any shutdown.
type Controller struct {
	Kp, Ki, Kd float64
	SplitRatio float64 // fraction of output sent to HeaterOne; remainder to HeaterTwo

	Enabled bool

	integral  float64
	lastError float64

	heaterOne hal.HeaterDriver
	heaterTwo hal.HeaterDriver
}

// New returns a disabled Controller; heating stays off until something
// explicitly enables it, which matches the state on boot.
func New(heaterOne, heaterTwo hal.HeaterDriver, kp, ki, kd, splitRatio float64) *Controller {
	return &Controller{
		Kp: kp, Ki: ki, Kd: kd,
		SplitRatio: splitRatio,
		heaterOne:  heaterOne,
		heaterTwo:  heaterTwo,
	}
}

// Update runs one PID step and commits the resulting duties to the heater
// actuators. It returns the two duties in [0,1] for telemetry/testing.
func (c *Controller) Update(targetPSI, currentPSI, dtS float64) (dutyOne, dutyTwo float64) {
	if !c.Enabled {
		c.writeDuties(0, 0)
		return 0, 0
	}
	if dtS <= 0 {
		dtS = 1e-3
	}

	errVal := targetPSI - currentPSI

	// Tentative integral accumulation; only committed if it doesn't push
	// the output past saturation (anti-windup by clamping).
	tentativeIntegral := c.integral + errVal*dtS
	derivative := (errVal - c.lastError) / dtS

	output := c.Kp*errVal + c.Ki*tentativeIntegral + c.Kd*derivative
	clamped := clamp01(output)

	if output == clamped {
		// not saturated: commit the integral accumulation
		c.integral = tentativeIntegral
	}
	// saturated: integral is left at its previous value (anti-windup)

	c.lastError = errVal

	dutyOne = clamped * c.SplitRatio
	dutyTwo = clamped * (1 - c.SplitRatio)
	c.writeDuties(dutyOne, dutyTwo)
	return dutyOne, dutyTwo
}

// Shutdown forces both heater duties to 0 immediately, idempotently.
func (c *Controller) Shutdown() {
	c.Enabled = false
	c.writeDuties(0, 0)
}

func (c *Controller) writeDuties(one, two float64) {
	if c.heaterOne != nil {
		_ = c.heaterOne.SetDuty(one)
	}
	if c.heaterTwo != nil {
		_ = c.heaterTwo.SetDuty(two)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
