package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/transport"
)

var errNoTransport = errors.New("transport is not configured")

// SwitchableTransport is the single transport the device service owns. It
// forwards to the connector built from the current connection config.
type SwitchableTransport struct {
	mu     sync.RWMutex
	cfg    config.ConnectionConfig
	active transport.Transport
}

func NewConnectionTransport(cfg config.ConnectionConfig) (*SwitchableTransport, error) {
	active, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	return &SwitchableTransport{cfg: cfg, active: active}, nil
}

// Apply replaces the connector when cfg differs from the current one. Closing
// the old connector fails its pending read, so the device service reconnects
// through the new one.
func (t *SwitchableTransport) Apply(cfg config.ConnectionConfig) error {
	t.mu.RLock()
	unchanged := t.active != nil && t.cfg == cfg
	t.mu.RUnlock()
	if unchanged {
		return nil
	}

	next, err := newTransport(cfg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	previous := t.active
	t.active = next
	t.cfg = cfg
	t.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	return nil
}

func (t *SwitchableTransport) Config() config.ConnectionConfig {
	_, cfg := t.snapshot()

	return cfg
}

func (t *SwitchableTransport) Name() string {
	active, _ := t.snapshot()
	if active == nil {
		return "unknown"
	}

	return active.Name()
}

// StatusTarget prefers the connector's own description and falls back to the
// configured target.
func (t *SwitchableTransport) StatusTarget() string {
	active, cfg := t.snapshot()
	if targeted, ok := active.(transport.Targeted); ok {
		if target := strings.TrimSpace(targeted.StatusTarget()); target != "" {
			return target
		}
	}

	return ConnectionTarget(cfg)
}

func (t *SwitchableTransport) Connect(ctx context.Context) error {
	active, _ := t.snapshot()
	if active == nil {
		return errNoTransport
	}

	return active.Connect(ctx)
}

func (t *SwitchableTransport) Close() error {
	active, _ := t.snapshot()
	if active == nil {
		return nil
	}

	return active.Close()
}

func (t *SwitchableTransport) ReadLine(ctx context.Context) (string, error) {
	active, _ := t.snapshot()
	if active == nil {
		return "", errNoTransport
	}

	return active.ReadLine(ctx)
}

func (t *SwitchableTransport) WriteLine(ctx context.Context, line string) error {
	active, _ := t.snapshot()
	if active == nil {
		return errNoTransport
	}

	return active.WriteLine(ctx, line)
}

func (t *SwitchableTransport) snapshot() (transport.Transport, config.ConnectionConfig) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.active, t.cfg
}

func newTransport(cfg config.ConnectionConfig) (transport.Transport, error) {
	switch cfg.Connector {
	case config.ConnectorSerial:
		baud := cfg.SerialBaud
		if baud <= 0 {
			baud = config.DefaultSerialBaud
		}

		return transport.NewSerialTransport(cfg.SerialPort, baud), nil
	case config.ConnectorIP:
		port := cfg.Port
		if port <= 0 {
			port = config.DefaultIPPort
		}

		return transport.NewIPTransport(cfg.Host, port), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}
