package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keskad/locosteam/pkgs/hal"
)

func TestSupervisor_SimulateEncoderAdvancesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(ctx)

	encoder := hal.NewSimulatedEncoder(10)
	sup.SimulateEncoder(encoder, 1, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.NoError(t, sup.Wait())

	assert.Greater(t, encoder.Count(), uint32(0))
}

func TestSupervisor_WatchSurfacesRealError(t *testing.T) {
	sup := NewSupervisor(context.Background())
	boom := assert.AnError

	sup.Watch(func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, sup.Wait(), boom)
}

func TestSupervisor_WatchStopsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(ctx)

	started := make(chan struct{})
	sup.Watch(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})

	<-started
	cancel()
	assert.NoError(t, sup.Wait())
}
