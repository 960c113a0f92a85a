//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func acquireInstanceLock(name string) (InstanceLock, error) {
	file, err := openLockFile(lockBaseDir(), name)
	if err != nil {
		return nil, err
	}

	err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		_ = file.Close()

		return nil, busyError(file.Name())
	}
	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("acquire instance file lock: %w", err)
	}
	recordOwner(file)

	return &fileInstanceLock{file: file, unlock: funlock}, nil
}

func funlock(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	if errors.Is(err, unix.EBADF) {
		return nil
	}

	return err
}

// lockBaseDir is XDG_RUNTIME_DIR when set, otherwise a per-user directory
// under the system temp dir.
func lockBaseDir() string {
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return runtimeDir
	}

	return filepath.Join(os.TempDir(), "uid-"+strconv.Itoa(os.Getuid()))
}
