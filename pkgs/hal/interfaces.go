// Package hal declares the small capability surfaces the control core is
// injected with at construction: a narrow contract the orchestrator
// depends on, with a real driver and an in-memory simulated implementation
// both satisfying it. Physical GPIO/ADC/PWM drivers, the DCC electrical
// decoder and the wireless transport are external collaborators and are
// represented here only as interfaces; no concrete hardware driver lives
// in this module.
package hal

import "time"

// RawTemps is the unvalidated, degrees-Celsius reading of the three
// thermal channels, straight from the ADC driver.
type RawTemps struct {
	Boiler      float64
	Superheater float64
	Logic       float64
}

// SensorDriver is the raw-channel capability the sensor suite (C2) reads
// through. It never validates ranges; that is the sensor suite's job.
type SensorDriver interface {
	ReadTemps() (RawTemps, error)
	ReadPressureKPa() (float64, error)
	ReadTrackVoltageMilliVolts() (int, error)
	FreeHeapBytes() (int, error)
}

// EncoderDriver exposes the ISR-incremented wheel pulse counter. Real
// hardware increments Count from an interrupt context; the count must be
// monotonically increasing (mod 2^32) and readable without blocking.
type EncoderDriver interface {
	Count() uint32
	WheelCircumferenceCM() float64
}

// ServoDriver is the PWM output the mechanical mapper (C6) drives.
type ServoDriver interface {
	// SetDuty writes a servo position as a percentage 0..100 of full travel.
	// 0 means fully closed.
	SetDuty(pct float64) error
	// Cut removes drive current entirely (distinct from SetDuty(0): the
	// regulator may be anywhere, but holding current is eliminated).
	Cut() error
}

// HeaterDriver is a single resistive heater PWM channel.
type HeaterDriver interface {
	// SetDuty writes a duty cycle in [0,1].
	SetDuty(duty float64) error
}

// Actuators bundles the three PWM outputs the orchestrator owns exclusively.
type Actuators struct {
	Servo       ServoDriver
	HeaterOne   HeaterDriver
	HeaterTwo   HeaterDriver
}

// Clock abstracts wall-clock time so tests can control it. Real deployments
// use SystemClock; tests substitute a fake clock that advances deterministically.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the production Clock backed by the standard library.
type SystemClock struct{}

func (SystemClock) Now() time.Time      { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// LinkIO is the wireless short-range serial link's transport, reduced to
// the two primitives the telemetry/command layer (C10) needs: non-blocking
// best-effort send of one outbound line, and best-effort receive of
// whatever bytes are currently available (never blocks).
type LinkIO interface {
	// SendLine writes one newline-terminated frame. Failure is silently
	// tolerated by the caller; the error is returned only for logging.
	SendLine(line string) error
	// ReadAvailable returns bytes currently buffered by the transport
	// without blocking. An empty slice means nothing is available.
	ReadAvailable() []byte
}

// Persistence is the non-volatile storage capability used by the
// background file-write queue (pkgs/workers), which tolerates failure. The
// configuration store and the event ring write to the filesystem directly.
type Persistence interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}
