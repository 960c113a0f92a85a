package ui

import (
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
)

// connectionStatusPresenter mirrors the device connection state into the
// window title and a status label. It is only touched on the UI goroutine.
type connectionStatusPresenter struct {
	window fyne.Window
	label  *widget.Label
	status connectors.ConnectionStatus
}

func newConnectionStatusPresenter(window fyne.Window, label *widget.Label, initial connectors.ConnectionStatus) *connectionStatusPresenter {
	p := &connectionStatusPresenter{window: window, label: label}
	p.Set(initial)

	return p
}

func (p *connectionStatusPresenter) Set(status connectors.ConnectionStatus) {
	p.status = status
	if p.window != nil {
		p.window.SetTitle(formatWindowTitle(status))
	}
	if p.label != nil {
		p.label.Importance = statusImportance(status.State)
		p.label.SetText(formatConnStatus(status))
	}
}

func (p *connectionStatusPresenter) Status() connectors.ConnectionStatus {
	return p.status
}

func statusImportance(state connectors.ConnectionState) widget.Importance {
	switch state {
	case connectors.ConnectionStateConnected:
		return widget.SuccessImportance
	case connectors.ConnectionStateConnecting, connectors.ConnectionStateReconnecting:
		return widget.WarningImportance
	case connectors.ConnectionStateDisconnected:
		return widget.DangerImportance
	default:
		return widget.MediumImportance
	}
}

// formatConnStatus renders e.g. "Serial reconnecting (/dev/ttyACM0@115200) (port busy)".
func formatConnStatus(status connectors.ConnectionStatus) string {
	parts := make([]string, 0, 4)
	if name := transportDisplayName(status.TransportName); name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, string(status.State))
	if target := strings.TrimSpace(status.Target); target != "" {
		parts = append(parts, "("+target+")")
	}
	if status.Err != "" {
		parts = append(parts, "("+status.Err+")")
	}

	return strings.Join(parts, " ")
}

func transportDisplayName(name string) string {
	name = strings.TrimSpace(name)
	switch connector := config.ConnectorType(strings.ToLower(name)); connector {
	case config.ConnectorIP, config.ConnectorSerial:
		return connectorOptionFromType(connector)
	default:
		return name
	}
}

func formatWindowTitle(status connectors.ConnectionStatus) string {
	return app.Name + " " + app.BuildVersion() + " - " + formatConnStatus(status)
}

func currentConnStatus(dep RuntimeDependencies) (connectors.ConnectionStatus, bool) {
	if dep.Data.CurrentConnStatus == nil {
		return connectors.ConnectionStatus{}, false
	}

	return dep.Data.CurrentConnStatus()
}

// resolveInitialConnStatus falls back to the configured target until the
// device service has reported.
func resolveInitialConnStatus(dep RuntimeDependencies) connectors.ConnectionStatus {
	if status, ok := currentConnStatus(dep); ok {
		return status
	}

	return app.ConnectionStatusFromConfig(dep.Data.Config.Connection)
}
