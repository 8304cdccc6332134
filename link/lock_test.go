//go:build unix

package link

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial0")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	agent := NewFileLock(path)
	defer agent.Close()
	poweroff := NewFileLock(path)
	defer poweroff.Close()

	require.NoError(t, agent.Lock())
	ok, err := poweroff.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "lock must be exclusive")

	require.NoError(t, agent.Unlock())
	ok, err = poweroff.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, poweroff.Unlock())
}

func TestFileLock_MissingDevice(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, l.Lock())
	assert.NoError(t, l.Close())
}
