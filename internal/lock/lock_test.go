package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")

	g, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, g)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data[:len(data)-1]))

	require.NoError(t, g.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireFailsWhenLiveInstanceHoldsLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")

	first, err := Acquire(path)
	require.NoError(t, err)
	defer first.Release()

	_, err = Acquire(path)
	assert.Error(t, err)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.pid")

	// A PID that is vanishingly unlikely to be alive.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0644))

	g, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, g)
	defer g.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data[:len(data)-1]))
}
