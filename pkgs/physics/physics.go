// Package physics implements the pure, stateless mapping from a DCC speed
// step to a regulator setpoint and reported model velocity. Every function
// here is a pure function of its inputs: no internal state, no time
// dependency, just small standalone transforms over plain value types.
package physics

// DCCToRegulator maps a 0..127 DCC speed step linearly onto a 0..100
// regulator percentage, step 127 landing exactly on 100.
func DCCToRegulator(step uint8) float64 {
	pct := float64(step) / 126.0 * 100.0
	return clamp(pct, 0, 100)
}

// ApplyPressureCompensation scales a regulator percentage by the ratio of
// current to maximum pressure; at or below 5 PSI the regulator is starved
// of steam entirely and the compensated output is 0.
func ApplyPressureCompensation(pct, psi, maxPSI float64) float64 {
	if psi <= 5 {
		return 0
	}
	if maxPSI <= 0 {
		return 0
	}
	return clamp(pct*(psi/maxPSI), 0, 100)
}

// RegulatorToVelocity converts a regulator percentage to a reported model
// velocity in cm/s, scaling the prototype's top speed down by the model
// scale denominator. A regulator at or below 1% is clamped to a complete
// stop to model static friction (stiction) in the real mechanism.
func RegulatorToVelocity(pct, prototypeKPH, scaleDenominator float64) float64 {
	if pct <= 1 {
		return 0
	}
	if scaleDenominator <= 0 {
		return 0
	}
	modelTopSpeedCMS := prototypeKPH * kphToCMS / scaleDenominator
	return modelTopSpeedCMS * (pct / 100.0)
}

const kphToCMS = 27.778

// ModelTopSpeedCMS returns the model's full-regulator velocity in cm/s for
// the given prototype top speed and scale denominator, the same quantity
// RegulatorToVelocity scales by pct/100.
func ModelTopSpeedCMS(prototypeKPH, scaleDenominator float64) float64 {
	if scaleDenominator <= 0 {
		return 0
	}
	return prototypeKPH * kphToCMS / scaleDenominator
}

// VelocityToRegulatorPct is the inverse of RegulatorToVelocity: it
// estimates the regulator percentage that would produce velocityCMS at the
// given prototype/scale, for components (the degraded-mode controller) that
// command a velocity directly rather than a regulator setpoint. Velocity at
// or below zero maps to a fully closed regulator.
func VelocityToRegulatorPct(velocityCMS, prototypeKPH, scaleDenominator float64) float64 {
	if velocityCMS <= 0 {
		return 0
	}
	top := ModelTopSpeedCMS(prototypeKPH, scaleDenominator)
	if top <= 0 {
		return 0
	}
	return clamp(velocityCMS/top*100.0, 0, 100)
}

// DCCToVelocity composes the three mappings above into a single
// step-to-velocity conversion.
func DCCToVelocity(step uint8, psi, prototypeKPH, scaleDenominator, maxPSI float64) float64 {
	pct := DCCToRegulator(step)
	compensated := ApplyPressureCompensation(pct, psi, maxPSI)
	return RegulatorToVelocity(compensated, prototypeKPH, scaleDenominator)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
