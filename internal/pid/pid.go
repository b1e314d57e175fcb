package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

const filePerm = 0o600

// Write records the current process ID at path. It fails with
// already_running when the file names a live process, and replaces files
// left behind by a process that is gone. An empty path disables the file.
func Write(path string) error {
	if path == "" {
		return nil
	}

	errFactory := errors.New()

	if running, pid := holder(path); running {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{
			Path: path,
			PID:  pid,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// holder reports whether the pid file at path belongs to a running process.
func holder(path string) (bool, int) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		logger.Debug().Str("path", path).Msg("Ignoring malformed PID file")
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, pid
	}

	if err := process.Signal(syscall.Signal(0)); err != nil {
		logger.Debug().Str("path", path).Int("pid", pid).Msg("Replacing stale PID file")
		return false, pid
	}

	return true, pid
}

// Remove deletes the PID file at path. A missing file is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
