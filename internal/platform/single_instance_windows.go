//go:build windows

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// The lock covers one byte past any pid the holder writes.
const lockRangeOffset = 1 << 20

func acquireInstanceLock(name string) (InstanceLock, error) {
	// %TEMP% already resolves to a per-user directory.
	file, err := openLockFile(os.TempDir(), name)
	if err != nil {
		return nil, err
	}

	ol := lockOverlapped()
	err = windows.LockFileEx(
		windows.Handle(file.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol,
	)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		_ = file.Close()

		return nil, busyError(file.Name())
	}
	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("acquire instance file lock: %w", err)
	}
	recordOwner(file)

	return &fileInstanceLock{file: file, unlock: unlockFile}, nil
}

func unlockFile(file *os.File) error {
	return windows.UnlockFileEx(windows.Handle(file.Fd()), 0, 1, 0, lockOverlapped())
}

func lockOverlapped() *windows.Overlapped {
	return &windows.Overlapped{Offset: lockRangeOffset}
}
