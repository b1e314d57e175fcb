package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "cryoctl.pid")

	require.NoError(t, pid.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, pid.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// second remove is a no-op
	assert.NoError(t, pid.Remove(path))
}

func TestWriteAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cryoctl.pid")

	require.NoError(t, pid.Write(path))

	err := pid.Write(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead process", "999999999"},
		{"malformed", "not-a-pid"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cryoctl.pid")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			require.NoError(t, pid.Write(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
		})
	}
}

func TestEmptyPathDisabled(t *testing.T) {
	assert.NoError(t, pid.Write(""))
	assert.NoError(t, pid.Remove(""))
}
