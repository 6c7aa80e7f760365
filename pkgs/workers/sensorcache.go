package workers

import (
	"time"

	"github.com/keskad/locosteam/pkgs/sensors"
)

// sensorCacheValidity is how long a cached reading may be served before the
// next Read forces a fresh sample, decoupling the 50 Hz control loop from
// a possibly slower ADC sampling cadence.
const sensorCacheValidity = 100 * time.Millisecond

// cachedReading is the joint snapshot the control loop actually consumes
// each tick.
type cachedReading struct {
	Temps          sensors.Temps
	PressurePSI    float64
	TrackVoltageMV int
	FreeHeapBytes  int
}

// CachedSensorReader wraps a sensors.Suite and serves a memoized reading
// until sensorCacheValidity elapses.
type CachedSensorReader struct {
	suite    *sensors.Suite
	lastAt   time.Time
	lastRead cachedReading
}

// NewCachedSensorReader returns a reader wrapping suite.
func NewCachedSensorReader(suite *sensors.Suite) *CachedSensorReader {
	return &CachedSensorReader{suite: suite}
}

// Read returns the cached reading if still valid at now, otherwise samples
// the underlying suite and refreshes the cache.
func (c *CachedSensorReader) Read(now time.Time) cachedReading {
	if !c.lastAt.IsZero() && now.Sub(c.lastAt) < sensorCacheValidity {
		return c.lastRead
	}
	c.lastRead = cachedReading{
		Temps:          c.suite.ReadTemps(),
		PressurePSI:    c.suite.ReadPressurePSI(),
		TrackVoltageMV: c.suite.ReadTrackVoltageMilliVolts(),
		FreeHeapBytes:  c.suite.FreeHeapBytes(),
	}
	c.lastAt = now
	return c.lastRead
}
