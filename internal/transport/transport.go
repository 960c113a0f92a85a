package transport

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotConnected is returned by line operations on a closed transport.
var ErrNotConnected = errors.New("transport is not connected")

// Transport moves text lines between the app and a motion controller.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	// ReadLine blocks until the next non-blank line and returns it without
	// its terminator.
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
}

// Targeted transports can describe their endpoint for status display, for
// example "/dev/ttyUSB0@115200" or "esp3d.local:23".
type Targeted interface {
	StatusTarget() string
}

func newLogger(kind string) *slog.Logger {
	return slog.Default().With("component", "transport", "transport", kind)
}
