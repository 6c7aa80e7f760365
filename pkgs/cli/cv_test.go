package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keskad/locosteam/pkgs/config"
)

func TestResolveIDs_EmptyReturnsEveryKnownID(t *testing.T) {
	ids, err := resolveIDs(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}

func TestResolveIDs_StripsCVPrefix(t *testing.T) {
	ids, err := resolveIDs([]string{"CV32", "cv41"})
	require.NoError(t, err)
	assert.Equal(t, []int{32, 41}, ids)
}

func TestResolveIDs_RejectsGarbage(t *testing.T) {
	_, err := resolveIDs([]string{"not-a-number"})
	assert.Error(t, err)
}

func TestCVSetAndGet_RoundTrip(t *testing.T) {
	cvPath := filepath.Join(t.TempDir(), "cv.yaml")
	g := &globalArgs{CVPath: cvPath}

	setCmd := newCVSetCommand(g)
	setCmd.SetArgs([]string{"CV41=80"})
	require.NoError(t, setCmd.Execute())

	var out bytes.Buffer
	getCmd := newCVGetCommand(g)
	getCmd.SetOut(&out)
	getCmd.SetArgs([]string{"41"})
	require.NoError(t, getCmd.Execute())

	store, err := config.Load(cvPath)
	require.NoError(t, err)
	v, ok := store.Get(41)
	require.True(t, ok)
	assert.Equal(t, 80.0, v.Float())
}

func TestCVSetReal_RejectsOutOfRange(t *testing.T) {
	cvPath := filepath.Join(t.TempDir(), "cv.yaml")
	g := &globalArgs{CVPath: cvPath}

	cmd := newCVSetRealCommand(g)
	cmd.SetArgs([]string{"32", "99"})
	assert.Error(t, cmd.Execute())
}

func TestCVSetReal_AcceptsValidValue(t *testing.T) {
	cvPath := filepath.Join(t.TempDir(), "cv.yaml")
	g := &globalArgs{CVPath: cvPath}

	cmd := newCVSetRealCommand(g)
	cmd.SetArgs([]string{"32", "20.0"})
	require.NoError(t, cmd.Execute())
}
