package telemetry

import "fmt"

// Frame is the outbound telemetry snapshot the orchestrator assembles once
// a second (§4.11 step 9) and the Link sends at most one of per tick.
// Consumers must tolerate additional fields appended at the end; Render
// only ever appends, never reorders, the fields below.
type Frame struct {
	VelocityCMS float64
	PressurePSI float64
	BoilerC     float64
	SuperC      float64
	LogicC      float64
	ServoDuty   int
	DCCStep     uint8
	LoopCount   uint64
}

// Render formats the frame as the ASCII key-value line described in §4.10:
// space-separated, newline-terminated, one decimal place for the analogue
// fields.
func (f Frame) Render() string {
	return fmt.Sprintf("V%.1f P%.1f T%.1f,%.1f,%.1f S%d D%d L%d\n",
		f.VelocityCMS, f.PressurePSI, f.BoilerC, f.SuperC, f.LogicC,
		f.ServoDuty, f.DCCStep, f.LoopCount)
}
