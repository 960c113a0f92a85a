package ui

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
)

// The change journal writes asynchronously, give it a moment before reloading.
const historyReloadDelay = 300 * time.Millisecond

// bindViewListeners keeps the status presenter and the history tab in sync
// with the bus.
func bindViewListeners(dep RuntimeDependencies, view mainView) func() {
	runOnUI := dep.runOnUI()
	setStatus := func(status connectors.ConnectionStatus) {
		if view.connStatusPresenter != nil {
			view.connStatusPresenter.Set(status)
		}
	}

	stop := startUIEventListeners(
		dep.Data.Bus,
		func(status connectors.ConnectionStatus) {
			runOnUI(func() { setStatus(status) })
		},
		func(event connectors.SubmitEvent) {
			appLogger.Debug("settings submit observed", "command", event.Command, "outcome", event.Outcome)
			if view.history == nil {
				return
			}
			time.AfterFunc(historyReloadDelay, func() {
				runOnUI(view.history.Reload)
			})
		},
	)
	// Catch up on a status published before the subscription existed.
	if status, ok := currentConnStatus(dep); ok {
		setStatus(status)
	}

	return stop
}

// startUIEventListeners forwards connection status and submit events to the
// view. No callback runs once the returned stop func has been called.
func startUIEventListeners(
	messageBus bus.MessageBus,
	onConnStatus func(connectors.ConnectionStatus),
	onSubmit func(connectors.SubmitEvent),
) func() {
	if messageBus == nil {
		appLogger.Debug("skipping UI event listeners: message bus is nil")

		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool
	listen(ctx, messageBus, connectors.TopicConnStatus, &stopped, onConnStatus)
	listen(ctx, messageBus, connectors.TopicSubmit, &stopped, onSubmit)
	appLogger.Debug("subscribed to UI bus topics", "topics", []string{connectors.TopicConnStatus, connectors.TopicSubmit})

	return func() {
		if stopped.Swap(true) {
			return
		}
		appLogger.Debug("stopping UI event listeners")
		cancel()
	}
}

func listen[T any](ctx context.Context, messageBus bus.MessageBus, topic string, stopped *atomic.Bool, fn func(T)) {
	if fn == nil {
		return
	}
	bus.Listen(ctx, messageBus, topic, func(msg T) bool {
		if stopped.Load() {
			return false
		}
		fn(msg)

		return true
	})
}
