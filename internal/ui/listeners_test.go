package ui

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
)

func TestStartUIEventListenersStopPreventsFurtherCallbacks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	var connEvents atomic.Int64
	var submitEvents atomic.Int64
	stop := startUIEventListeners(
		messageBus,
		func(_ connectors.ConnectionStatus) {
			connEvents.Add(1)
		},
		func(event connectors.SubmitEvent) {
			if event.Command == "$110" {
				submitEvents.Add(1)
			}
		},
	)

	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnectionStatus{State: connectors.ConnectionStateConnected})
	messageBus.Publish(connectors.TopicSubmit, connectors.SubmitEvent{Command: "$110", Outcome: connectors.SubmitApplied})
	messageBus.Publish(connectors.TopicSubmit, "not an event")

	waitForCondition(t, func() bool {
		return connEvents.Load() == 1 && submitEvents.Load() == 1
	})

	stop()

	connBefore := connEvents.Load()
	submitBefore := submitEvents.Load()
	messageBus.Publish(connectors.TopicConnStatus, connectors.ConnectionStatus{State: connectors.ConnectionStateDisconnected})
	messageBus.Publish(connectors.TopicSubmit, connectors.SubmitEvent{Command: "$110"})
	time.Sleep(100 * time.Millisecond)

	if connEvents.Load() != connBefore {
		t.Fatalf("expected no new connection callbacks after stop: before=%d after=%d", connBefore, connEvents.Load())
	}
	if submitEvents.Load() != submitBefore {
		t.Fatalf("expected no new submit callbacks after stop: before=%d after=%d", submitBefore, submitEvents.Load())
	}
}

func TestStartUIEventListenersNilBusReturnsNoopStop(t *testing.T) {
	stop := startUIEventListeners(nil, nil, nil)
	stop()
	stop()
}
