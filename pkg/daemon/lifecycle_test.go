package daemon_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/flashback/pkg/daemon"
)

const deadPID = 999999999

func TestPIDFileRoundTrip(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "run", "flashbackd.pid")

	assert.False(t, daemon.IsDaemonRunning(pidPath))

	require.NoError(t, daemon.WritePIDFile(pidPath))
	pid, err := daemon.ReadPIDFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, daemon.IsDaemonRunning(pidPath))

	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(deadPID)), 0644))
	assert.False(t, daemon.IsDaemonRunning(pidPath))

	require.NoError(t, daemon.RemovePIDFile(pidPath))
	assert.NoFileExists(t, pidPath)
}

func TestRecoverFromStaleDaemon(t *testing.T) {
	setup := func(t *testing.T, pid string) (dir, pidPath, socketPath, dbPath string) {
		t.Helper()
		dir = t.TempDir()
		pidPath = filepath.Join(dir, "flashbackd.pid")
		socketPath = filepath.Join(dir, "flashbackd.sock")
		dbPath = filepath.Join(dir, "flashback.db")
		if pid != "" {
			require.NoError(t, os.WriteFile(pidPath, []byte(pid), 0644))
		}
		return dir, pidPath, socketPath, dbPath
	}

	t.Run("no pid file", func(t *testing.T) {
		_, pidPath, socketPath, dbPath := setup(t, "")
		assert.NoError(t, daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath))
	})

	t.Run("garbage pid file", func(t *testing.T) {
		_, pidPath, socketPath, dbPath := setup(t, "not-a-pid")
		assert.NoError(t, daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath))
	})

	t.Run("live process", func(t *testing.T) {
		_, pidPath, socketPath, dbPath := setup(t, strconv.Itoa(os.Getpid()))
		err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath)
		assert.ErrorIs(t, err, daemon.ErrDaemonAlreadyRunning)
		assert.FileExists(t, pidPath)
	})

	t.Run("stale process", func(t *testing.T) {
		_, pidPath, socketPath, dbPath := setup(t, strconv.Itoa(deadPID))
		require.NoError(t, os.MkdirAll(dbPath, 0755))
		lockPath := filepath.Join(dbPath, "LOCK")
		statusPath := daemon.StatusPath(socketPath)
		for _, p := range []string{socketPath, lockPath, statusPath} {
			require.NoError(t, os.WriteFile(p, []byte("stale"), 0644))
		}

		require.NoError(t, daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath))
		for _, p := range []string{pidPath, socketPath, lockPath, statusPath} {
			assert.NoFileExists(t, p)
		}
	})

	t.Run("stale pid only", func(t *testing.T) {
		_, pidPath, socketPath, dbPath := setup(t, strconv.Itoa(deadPID))
		require.NoError(t, daemon.RecoverFromStaleDaemon(pidPath, socketPath, dbPath))
		assert.NoFileExists(t, pidPath)
	})
}

func TestIsProcessRunning(t *testing.T) {
	assert.True(t, daemon.IsProcessRunning(os.Getpid()))
	assert.False(t, daemon.IsProcessRunning(deadPID))
}
