package events

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_SnapshotOrdersChronologicallyBeforeWraparound(t *testing.T) {
	r := NewRing()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Append(KindServoFault, "one", base)
	r.Append(KindSensorDegraded, "two", base.Add(time.Second))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, KindServoFault, snap[0].Kind)
	assert.Equal(t, KindSensorDegraded, snap[1].Kind)
}

func TestRing_OverwritesOldestOnceFull(t *testing.T) {
	r := NewRing()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < Capacity+3; i++ {
		r.Append(KindLoopOverrun, "", base.Add(time.Duration(i)*time.Second))
	}

	snap := r.Snapshot()
	require.Len(t, snap, Capacity)
	// the three oldest records (index 0,1,2) must have been evicted
	assert.Equal(t, base.Add(3*time.Second), snap[0].Timestamp)
	assert.Equal(t, base.Add(time.Duration(Capacity+2)*time.Second), snap[Capacity-1].Timestamp)
}

func TestRing_FlushAndLoadRoundTrip(t *testing.T) {
	r := NewRing()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Append(KindShutdown, "dry boil", now)

	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, r.Flush(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, KindShutdown, loaded[0].Kind)
	assert.Equal(t, "dry boil", loaded[0].Detail)
}

func TestLoad_MissingFileReturnsEmptyNotError(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
