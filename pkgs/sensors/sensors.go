// Package sensors implements the sensor suite with health tracking. Each
// call samples the underlying driver, validates against a hard physical
// range, and either publishes the sample (resetting the channel's fault
// counter) or serves the cached last-known-good value while the counter
// advances.
package sensors

import (
	"github.com/sirupsen/logrus"

	"github.com/keskad/locosteam/pkgs/hal"
)

// Health is the public tag for a channel's condition.
type Health int

const (
	Nominal Health = iota
	Degraded
)

func (h Health) String() string {
	if h == Degraded {
		return "DEGRADED"
	}
	return "NOMINAL"
}

// Channel identifies one of the four monitored analogue channels.
type Channel int

const (
	ChannelBoiler Channel = iota
	ChannelSuperheater
	ChannelLogic
	ChannelPressure
)

// hardRange is the physical validity range of one channel.
type hardRange struct{ min, max float64 }

var hardRanges = map[Channel]hardRange{
	ChannelBoiler:      {0, 150},
	ChannelSuperheater: {0, 280},
	ChannelLogic:       {0, 100},
	ChannelPressure:    {-7, 207}, // kPa
}

type channelState struct {
	health    Health
	lastValid float64
	faults    int
}

// Suite is the sensor suite. PersistenceThreshold is the configured number
// of consecutive invalid reads (parameter 40) before a channel is marked
// DEGRADED; it suppresses single-sample electrical noise per §4.2.
type Suite struct {
	driver               hal.SensorDriver
	persistenceThreshold int

	state map[Channel]*channelState
}

// New returns a Suite with every channel NOMINAL and seeded at zero.
func New(driver hal.SensorDriver, persistenceThreshold int) *Suite {
	if persistenceThreshold < 1 {
		persistenceThreshold = 1
	}
	s := &Suite{
		driver:               driver,
		persistenceThreshold: persistenceThreshold,
		state:                make(map[Channel]*channelState, 4),
	}
	for ch := range hardRanges {
		s.state[ch] = &channelState{health: Nominal}
	}
	return s
}

// SetPersistenceThreshold lets the orchestrator apply a live CV update
// (parameter 40) without reconstructing the suite.
func (s *Suite) SetPersistenceThreshold(n int) {
	if n < 1 {
		n = 1
	}
	s.persistenceThreshold = n
}

// sample applies the validate-or-cache algorithm for one channel.
func (s *Suite) sample(ch Channel, raw float64, readErr error) float64 {
	st := s.state[ch]
	rng := hardRanges[ch]

	valid := readErr == nil && raw >= rng.min && raw <= rng.max
	if valid {
		st.faults = 0
		st.lastValid = raw
		if st.health == Degraded {
			st.health = Nominal
			logrus.WithField("channel", ch).Info("sensor channel recovered to NOMINAL")
		}
		return raw
	}

	st.faults++
	if st.faults >= s.persistenceThreshold && st.health != Degraded {
		st.health = Degraded
		logrus.WithField("channel", ch).Warn("sensor channel DEGRADED")
	}
	return st.lastValid
}

// Temps is the engineering-unit result of ReadTemps.
type Temps struct {
	Boiler      float64
	Superheater float64
	Logic       float64
}

// ReadTemps samples all three thermal channels.
func (s *Suite) ReadTemps() Temps {
	raw, err := s.driver.ReadTemps()
	return Temps{
		Boiler:      s.sample(ChannelBoiler, raw.Boiler, err),
		Superheater: s.sample(ChannelSuperheater, raw.Superheater, err),
		Logic:       s.sample(ChannelLogic, raw.Logic, err),
	}
}

// ReadPressurePSI samples the pressure transducer and converts kPa to PSI
// at the sensor boundary; PSI is the internal unit throughout the core.
func (s *Suite) ReadPressurePSI() float64 {
	raw, err := s.driver.ReadPressureKPa()
	kpa := s.sample(ChannelPressure, raw, err)
	return kpa * kPaToPSI
}

const kPaToPSI = 0.145037738

// ReadTrackVoltageMilliVolts passes the raw channel through unvalidated;
// §4.7 only needs a threshold comparison, not health tracking, for this one.
func (s *Suite) ReadTrackVoltageMilliVolts() int {
	mv, err := s.driver.ReadTrackVoltageMilliVolts()
	if err != nil {
		return 0
	}
	return mv
}

// FreeHeapBytes passes the raw channel through unvalidated for the same reason.
func (s *Suite) FreeHeapBytes() int {
	b, err := s.driver.FreeHeapBytes()
	if err != nil {
		return 0
	}
	return b
}

// HealthSnapshot is the {channel -> (health, last_valid)} map from §4.2's contract.
type HealthSnapshot struct {
	Health    Health
	LastValid float64
}

// SensorHealth returns the current health and last-known-valid value of
// every channel.
func (s *Suite) SensorHealth() map[Channel]HealthSnapshot {
	out := make(map[Channel]HealthSnapshot, len(s.state))
	for ch, st := range s.state {
		out[ch] = HealthSnapshot{Health: st.health, LastValid: st.lastValid}
	}
	return out
}

// FailedChannelCount counts channels currently DEGRADED.
func (s *Suite) FailedChannelCount() int {
	n := 0
	for _, st := range s.state {
		if st.health == Degraded {
			n++
		}
	}
	return n
}
