package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

// pollInterval is the port read timeout; reads wake up this often to check
// their context.
const pollInterval = 300 * time.Millisecond

var (
	openPort  = serial.Open
	portsList = serial.GetPortsList
)

// SerialTransport talks to a controller attached to a USB/UART port.
type SerialTransport struct {
	portName string
	baudRate int
	logger   *slog.Logger

	mu   sync.Mutex
	port serial.Port

	writeMu sync.Mutex
}

func NewSerialTransport(portName string, baudRate int) *SerialTransport {
	return &SerialTransport{
		portName: portName,
		baudRate: baudRate,
		logger:   newLogger("serial").With("port", portName, "baud", baudRate),
	}
}

// ListSerialPorts returns the serial ports known to the OS.
func ListSerialPorts() ([]string, error) {
	ports, err := portsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	return ports, nil
}

func (t *SerialTransport) Name() string {
	return "serial"
}

func (t *SerialTransport) StatusTarget() string {
	if t.portName == "" {
		return ""
	}

	return fmt.Sprintf("%s@%d", t.portName, t.baudRate)
}

func (t *SerialTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.port != nil:
		return nil
	case t.portName == "":
		return errors.New("serial port is empty")
	case t.baudRate <= 0:
		return fmt.Errorf("invalid serial baud rate: %d", t.baudRate)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	port, err := openPort(t.portName, &serial.Mode{BaudRate: t.baudRate})
	if err != nil {
		t.logger.Warn("connect failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", t.portName, err)
	}
	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	// Drop whatever the controller printed before we attached.
	_ = port.ResetInputBuffer()
	t.port = port
	t.logger.Info("connected")

	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.mu.Unlock()

	if port == nil {
		return nil
	}
	if err := port.Close(); err != nil {
		t.logger.Warn("close failed", "error", err)

		return err
	}
	t.logger.Info("closed")

	return nil
}

func (t *SerialTransport) ReadLine(ctx context.Context) (string, error) {
	port, err := t.current()
	if err != nil {
		return "", err
	}

	var one [1]byte
	line, err := readLine(func() (byte, error) {
		for {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			// A timed out read returns 0 bytes and no error.
			n, err := port.Read(one[:])
			if err != nil {
				return 0, err
			}
			if n == 1 {
				return one[0], nil
			}
		}
	})
	if err != nil {
		return "", err
	}
	t.logger.Debug("read line", "len", len(line))

	return line, nil
}

func (t *SerialTransport) WriteLine(ctx context.Context, line string) error {
	encoded, err := encodeLine(line)
	if err != nil {
		return err
	}
	port, err := t.current()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	for written := 0; written < len(encoded); {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Write(encoded[written:])
		if err != nil {
			t.logger.Warn("write line failed", "error", err)

			return fmt.Errorf("write line: %w", err)
		}
		written += n
	}
	t.logger.Debug("wrote line", "line", line)

	return nil
}

func (t *SerialTransport) current() (serial.Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrNotConnected
	}

	return t.port, nil
}
