package app

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/grbl"
)

// ConnectionTarget describes where cfg points in the same form the connected
// transport reports: host:port for ip, port@baud for serial.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorIP:
		host := strings.TrimSpace(cfg.Host)
		if host == "" || cfg.Port <= 0 {
			return host
		}

		return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	case config.ConnectorSerial:
		port := strings.TrimSpace(cfg.SerialPort)
		if port == "" || cfg.SerialBaud <= 0 {
			return port
		}

		return port + "@" + strconv.Itoa(cfg.SerialBaud)
	default:
		return ""
	}
}

// ConnectionStatusFromConfig is the status shown before the device service
// reports anything: connecting when a target is configured, disconnected otherwise.
func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	status := connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: transportName(cfg.Connector),
		Target:        ConnectionTarget(cfg),
	}
	if status.Target != "" {
		status.State = connectors.ConnectionStateConnecting
	}

	return status
}

func transportName(connector config.ConnectorType) string {
	if name := strings.TrimSpace(string(connector)); name != "" {
		return name
	}

	return "unknown"
}

// serialBannerWait bounds the wait for the startup banner on boards that do
// not reset when the port opens.
const serialBannerWait = 3 * time.Second

// ConnectedSignal is closed once the machine accepts commands. Over ip that is
// the first "connected" status. Opening a serial port resets most GRBL boards
// and anything written during boot is lost, so there it waits for the startup
// banner, or serialBannerWait when none arrives. The subscription is registered
// before returning, so a status published right after the call is not missed.
func ConnectedSignal(ctx context.Context, b bus.MessageBus) <-chan struct{} {
	return connectedSignal(ctx, b, serialBannerWait)
}

func connectedSignal(ctx context.Context, b bus.MessageBus, bannerWait time.Duration) <-chan struct{} {
	ready := make(chan struct{})
	topics := []string{connectors.TopicConnStatus, connectors.TopicLineIn}
	sub := b.Subscribe(topics...)
	go func() {
		defer b.Unsubscribe(sub, topics...)

		var timer *time.Timer
		var settled <-chan time.Time
		resetTimer := func() {
			if timer != nil {
				timer.Stop()
			}
			timer, settled = nil, nil
		}
		defer resetTimer()

		for {
			select {
			case <-ctx.Done():
				return
			case <-settled:
				close(ready)

				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch msg := raw.(type) {
				case connectors.ConnectionStatus:
					resetTimer()
					if msg.State != connectors.ConnectionStateConnected {
						break
					}
					if msg.TransportName != string(config.ConnectorSerial) {
						close(ready)

						return
					}
					timer = time.NewTimer(bannerWait)
					settled = timer.C
				case connectors.Line:
					if settled != nil && grbl.IsStartupBanner(msg.Text) {
						close(ready)

						return
					}
				}
			}
		}
	}()

	return ready
}
