package connectors

import "time"

// ConnectionState describes the connector lifecycle state shown in UI.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus is a bus event snapshot of current connector status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// Line is one text line received from the controller.
type Line struct {
	Text       string
	ReceivedAt time.Time
}

// RawLine carries line diagnostics for debug views.
type RawLine struct {
	Text string
	Len  int
}

// SubmitOutcome tells whether a settings update reached the device.
type SubmitOutcome string

const (
	SubmitApplied SubmitOutcome = "applied"
	SubmitFailed  SubmitOutcome = "failed"
)

// SubmitEvent records one settings update attempt.
type SubmitEvent struct {
	Command  string
	Previous string
	Value    string
	Outcome  SubmitOutcome
	Err      string
	At       time.Time
}
