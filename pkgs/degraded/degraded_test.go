package degraded

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestController_RampsLinearlyThenFloors(t *testing.T) {
	c := &Controller{}
	now := time.Now()
	c.Start(20, 10, now) // 20 cm/s, decel 10 cm/s^2

	assert.InDelta(t, 20, c.CommandedVelocity(now), 1e-9)
	assert.InDelta(t, 10, c.CommandedVelocity(now.Add(1*time.Second)), 1e-9)
	assert.Equal(t, 0.0, c.CommandedVelocity(now.Add(3*time.Second)))
	assert.True(t, c.IsStopped(now.Add(3*time.Second)))
}

func TestController_InactiveReturnsZero(t *testing.T) {
	c := &Controller{}
	assert.Equal(t, 0.0, c.CommandedVelocity(time.Now()))
	assert.False(t, c.IsStopped(time.Now()))
}

func TestController_StopDisarms(t *testing.T) {
	c := &Controller{}
	now := time.Now()
	c.Start(10, 5, now)
	c.Stop()
	assert.Equal(t, 0.0, c.CommandedVelocity(now))
	assert.False(t, c.Active())
}

func TestController_ZeroRateDefaultsToOne(t *testing.T) {
	c := &Controller{}
	now := time.Now()
	c.Start(5, 0, now)
	assert.InDelta(t, 4, c.CommandedVelocity(now.Add(1*time.Second)), 1e-9)
}
