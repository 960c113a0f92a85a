package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultIPPort is the ESP3D telnet bridge port.
	DefaultIPPort = 23
	dialTimeout   = 6 * time.Second
)

// IPTransport exchanges lines with a network bridge (ESP3D telnet, ser2net).
type IPTransport struct {
	target string
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

func NewIPTransport(host string, port int) *IPTransport {
	if port <= 0 {
		port = DefaultIPPort
	}
	var target string
	if host != "" {
		target = net.JoinHostPort(host, strconv.Itoa(port))
	}

	return &IPTransport{
		target: target,
		logger: newLogger("ip").With("target", target),
	}
}

func (t *IPTransport) Name() string {
	return "ip"
}

func (t *IPTransport) StatusTarget() string {
	return t.target
}

func (t *IPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}
	if t.target == "" {
		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	t.logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", t.target)
	if err != nil {
		t.logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial %s: %w", t.target, err)
	}
	t.conn = conn
	t.reader = bufio.NewReaderSize(conn, MaxLineLen)
	t.logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (t *IPTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.reader = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		t.logger.Warn("close failed", "error", err)

		return err
	}
	t.logger.Info("closed")

	return nil
}

func (t *IPTransport) ReadLine(ctx context.Context) (string, error) {
	t.mu.Lock()
	conn, reader := t.conn, t.reader
	t.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}
	_ = conn.SetReadDeadline(deadlineOf(ctx))

	line, err := readLine(reader.ReadByte)
	if err != nil {
		return "", err
	}
	t.logger.Debug("read line", "len", len(line))

	return line, nil
}

func (t *IPTransport) WriteLine(ctx context.Context, line string) error {
	encoded, err := encodeLine(line)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadlineOf(ctx))
	if _, err := conn.Write(encoded); err != nil {
		t.logger.Warn("write line failed", "error", err)

		return fmt.Errorf("write line: %w", err)
	}
	t.logger.Debug("wrote line", "line", line)

	return nil
}

// deadlineOf maps a context deadline onto a net.Conn deadline; the zero time
// clears any previous one.
func deadlineOf(ctx context.Context) time.Time {
	deadline, _ := ctx.Deadline()

	return deadline
}
