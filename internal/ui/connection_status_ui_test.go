package ui

import (
	"strings"
	"testing"

	fynetest "fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
)

func TestFormatWindowTitle(t *testing.T) {
	got := formatWindowTitle(connectors.ConnectionStatus{
		State:         connectors.ConnectionStateConnected,
		TransportName: "ip",
	})
	want := "machinecfg " + app.BuildVersion() + " - IP connected"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFormatConnStatus_WithTargetAndError(t *testing.T) {
	got := formatConnStatus(connectors.ConnectionStatus{
		State:         connectors.ConnectionStateReconnecting,
		TransportName: "serial",
		Target:        "/dev/ttyACM2@115200",
		Err:           "port busy",
	})
	want := "Serial reconnecting (/dev/ttyACM2@115200) (port busy)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTransportDisplayName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ip", in: "ip", want: "IP"},
		{name: "serial", in: " Serial ", want: "Serial"},
		{name: "fallback", in: "custom", want: "custom"},
		{name: "empty", in: " ", want: ""},
	}

	for _, tt := range tests {
		got := transportDisplayName(tt.in)
		if got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestResolveInitialConnStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Connection.Connector = config.ConnectorIP
	cfg.Connection.Host = "10.0.0.5"

	fromConfig := resolveInitialConnStatus(RuntimeDependencies{Data: DataDependencies{Config: cfg}})
	if fromConfig.State != connectors.ConnectionStateConnecting || fromConfig.Target != "10.0.0.5:23" {
		t.Fatalf("unexpected status from config: %+v", fromConfig)
	}

	reported := connectors.ConnectionStatus{State: connectors.ConnectionStateConnected, TransportName: "ip"}
	fromRuntime := resolveInitialConnStatus(RuntimeDependencies{Data: DataDependencies{
		Config: cfg,
		CurrentConnStatus: func() (connectors.ConnectionStatus, bool) {
			return reported, true
		},
	}})
	if fromRuntime != reported {
		t.Fatalf("expected reported status, got %+v", fromRuntime)
	}
}

func TestConnectionStatusPresenterSet(t *testing.T) {
	fyApp := fynetest.NewApp()
	t.Cleanup(fyApp.Quit)

	window := fyApp.NewWindow("status")
	label := widget.NewLabel("")
	presenter := newConnectionStatusPresenter(
		window,
		label,
		connectors.ConnectionStatus{
			State:         connectors.ConnectionStateConnecting,
			TransportName: "ip",
			Target:        "cnc.local:23",
		},
	)

	if label.Importance != widget.WarningImportance {
		t.Fatalf("expected warning importance while connecting, got %v", label.Importance)
	}
	if !strings.Contains(label.Text, "cnc.local:23") {
		t.Fatalf("expected initial label to include target, got %q", label.Text)
	}
	if !strings.HasPrefix(window.Title(), "machinecfg ") {
		t.Fatalf("unexpected initial title %q", window.Title())
	}

	presenter.Set(connectors.ConnectionStatus{
		State:         connectors.ConnectionStateConnected,
		TransportName: "serial",
		Target:        "/dev/ttyACM0@115200",
	})
	if !strings.Contains(label.Text, "connected") || !strings.Contains(label.Text, "/dev/ttyACM0") {
		t.Fatalf("expected connected status in label, got %q", label.Text)
	}
	if presenter.Status().State != connectors.ConnectionStateConnected {
		t.Fatalf("expected current status to be updated, got %+v", presenter.Status())
	}
	if label.Importance != widget.SuccessImportance {
		t.Fatalf("expected success importance for connected, got %v", label.Importance)
	}
}

func TestConnectionStatusPresenterHandlesNilTargets(t *testing.T) {
	presenter := newConnectionStatusPresenter(nil, nil, connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: "serial",
	})
	presenter.Set(connectors.ConnectionStatus{State: connectors.ConnectionStateConnected})
	if got := formatConnStatus(presenter.Status()); got != "connected" {
		t.Fatalf("unexpected status text %q", got)
	}
}

func TestStatusImportance(t *testing.T) {
	tests := map[connectors.ConnectionState]widget.Importance{
		connectors.ConnectionStateConnected:    widget.SuccessImportance,
		connectors.ConnectionStateReconnecting: widget.WarningImportance,
		connectors.ConnectionStateDisconnected: widget.DangerImportance,
		connectors.ConnectionState("unknown"):  widget.MediumImportance,
	}
	for state, want := range tests {
		if got := statusImportance(state); got != want {
			t.Fatalf("%s: got %v, want %v", state, got, want)
		}
	}
}
