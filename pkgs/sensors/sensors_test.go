package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keskad/locosteam/pkgs/hal"
)

func TestSuite_TransientNoiseSuppressed(t *testing.T) {
	drv := hal.NewSimulatedSensors()
	drv.Temps.Boiler = 80
	suite := New(drv, 2)

	// first read establishes a valid baseline
	temps := suite.ReadTemps()
	assert.Equal(t, 80.0, temps.Boiler)

	// one bad sample must not flip the channel to DEGRADED yet
	drv.Temps.Boiler = 999 // out of range
	temps = suite.ReadTemps()
	assert.Equal(t, 80.0, temps.Boiler, "cached value expected on first bad read")
	health := suite.SensorHealth()
	assert.Equal(t, Nominal, health[ChannelBoiler].Health)
}

func TestSuite_PersistentFaultDegrades(t *testing.T) {
	drv := hal.NewSimulatedSensors()
	drv.Temps.Boiler = 80
	suite := New(drv, 2)
	suite.ReadTemps()

	drv.Temps.Boiler = 999
	suite.ReadTemps() // fault 1
	suite.ReadTemps() // fault 2 -> DEGRADED

	health := suite.SensorHealth()
	assert.Equal(t, Degraded, health[ChannelBoiler].Health)
	assert.Equal(t, 80.0, health[ChannelBoiler].LastValid)
	assert.Equal(t, 1, suite.FailedChannelCount())
}

func TestSuite_RecoversImmediately(t *testing.T) {
	drv := hal.NewSimulatedSensors()
	drv.Temps.Boiler = 80
	suite := New(drv, 2)
	suite.ReadTemps()
	drv.Temps.Boiler = 999
	suite.ReadTemps()
	suite.ReadTemps()
	assert.Equal(t, 1, suite.FailedChannelCount())

	drv.Temps.Boiler = 90
	temps := suite.ReadTemps()
	assert.Equal(t, 90.0, temps.Boiler)
	assert.Equal(t, 0, suite.FailedChannelCount())
}

func TestSuite_PressureConvertsKPaToPSI(t *testing.T) {
	drv := hal.NewSimulatedSensors()
	drv.PressureKPa = 124.11 // ~18 PSI
	suite := New(drv, 2)
	psi := suite.ReadPressurePSI()
	assert.InDelta(t, 18.0, psi, 0.05)
}

func TestSuite_DriverErrorCountsAsInvalidSample(t *testing.T) {
	drv := hal.NewSimulatedSensors()
	drv.Temps.Boiler = 80
	suite := New(drv, 2)
	suite.ReadTemps()

	drv.FailTemps = true
	suite.ReadTemps()
	suite.ReadTemps()
	assert.Equal(t, 1, suite.FailedChannelCount())
}
