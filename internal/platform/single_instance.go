package platform

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInstanceAlreadyRunning means another process holds the lock for the same
// application and profile, and therefore owns the machine connection.
var ErrInstanceAlreadyRunning = errors.New("instance already running")

// ErrInstanceLockUnsupported means the platform has no lock backend.
var ErrInstanceLockUnsupported = errors.New("instance lock unsupported")

const lockFilename = "instance.lock"

// InstanceLock is held for the lifetime of the process.
type InstanceLock interface {
	Release() error
}

// AcquireInstanceLock takes the lock for appID. A non-empty scope, usually the
// profile directory, narrows it so separate profiles can run side by side.
func AcquireInstanceLock(appID, scope string) (InstanceLock, error) {
	return acquireInstanceLock(instanceLockName(appID, scope))
}

func instanceLockName(appID, scope string) string {
	name := lockComponent(appID, "app")
	if scope = strings.TrimSpace(scope); scope != "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(scope))
		name += "-" + strconv.FormatUint(uint64(h.Sum32()), 16)
	}

	return name
}

// fileInstanceLock is an OS-level lock on an open file. The holder writes its
// pid into the file so a contender can name it.
type fileInstanceLock struct {
	file   *os.File
	unlock func(*os.File) error
}

func (l *fileInstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	file := l.file
	l.file = nil
	_ = file.Truncate(0)
	unlockErr := l.unlock(file)
	if closeErr := file.Close(); closeErr != nil {
		return fmt.Errorf("close instance lock file: %w", closeErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("unlock instance lock file: %w", unlockErr)
	}

	return nil
}

// openLockFile creates the lock file for name below dir.
func openLockFile(dir, name string) (*os.File, error) {
	dir = filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create instance lock dir: %w", err)
	}

	// #nosec G304 -- dir is the runtime or temp directory plus a sanitized name.
	file, err := os.OpenFile(filepath.Join(dir, lockFilename), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open instance lock file: %w", err)
	}

	return file, nil
}

func recordOwner(file *os.File) {
	if err := file.Truncate(0); err != nil {
		return
	}
	_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
}

// busyError reports contention, with the holder's pid when the lock file has one.
func busyError(path string) error {
	// #nosec G304 -- path is the lock file opened by this package.
	raw, err := os.ReadFile(path)
	if err != nil {
		return ErrInstanceAlreadyRunning
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return ErrInstanceAlreadyRunning
	}

	return fmt.Errorf("%w (pid %d)", ErrInstanceAlreadyRunning, pid)
}

// lockComponent keeps characters that are safe in file and mutex names.
func lockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if normalized := strings.Trim(b.String(), "_-."); normalized != "" {
		return normalized
	}

	return fallback
}
