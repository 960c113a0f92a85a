//go:build !unix && !windows

package platform

import (
	"fmt"
	"runtime"
)

func acquireInstanceLock(name string) (InstanceLock, error) {
	return nil, fmt.Errorf("%w: %s on %s", ErrInstanceLockUnsupported, name, runtime.GOOS)
}
