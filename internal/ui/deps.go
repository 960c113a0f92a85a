package ui

import (
	"context"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/notifications"
)

type DataDependencies struct {
	Config            config.AppConfig
	MachineSettings   MachineSettings
	Catalog           app.MessageCatalog
	Bus               bus.MessageBus
	Ready             <-chan struct{}
	CurrentConnStatus func() (connectors.ConnectionStatus, bool)
	LoadHistory       func(ctx context.Context, limit int) ([]connectors.SubmitEvent, error)
}

type ActionDependencies struct {
	OnSave         func(cfg config.AppConfig) error
	OnClearHistory func() error
	OnQuit         func()
	AddNotifier    func(sender notifications.Sender)
}

type UIHooks struct {
	CurrentWindow   func() fyne.Window
	RunOnUI         func(func())
	RunAsync        func(func())
	ShowErrorDialog func(err error, window fyne.Window)
	ShowConfirm     func(title, message string, callback func(bool), window fyne.Window)
}

type LaunchOptions struct {
	StartHidden bool
}

type RuntimeDependencies struct {
	Data    DataDependencies
	Actions ActionDependencies
	UIHooks UIHooks
	Launch  LaunchOptions
}

func (d RuntimeDependencies) runOnUI() func(func()) {
	if d.UIHooks.RunOnUI != nil {
		return d.UIHooks.RunOnUI
	}

	return fyne.Do
}

func (d RuntimeDependencies) runAsync() func(func()) {
	if d.UIHooks.RunAsync != nil {
		return d.UIHooks.RunAsync
	}

	return func(fn func()) {
		go fn()
	}
}

func (d RuntimeDependencies) text(id string) string {
	if d.Data.Catalog == nil {
		return id
	}

	return d.Data.Catalog.T(id)
}

func (d RuntimeDependencies) window() fyne.Window {
	if d.UIHooks.CurrentWindow == nil {
		return nil
	}

	return d.UIHooks.CurrentWindow()
}

// confirm runs fn once the user agrees. Without a window nobody can be asked
// and fn runs at once.
func (d RuntimeDependencies) confirm(title, message string, fn func()) {
	window := d.window()
	if window == nil {
		fn()

		return
	}
	show := d.UIHooks.ShowConfirm
	if show == nil {
		show = dialog.ShowConfirm
	}
	show(title, message, func(ok bool) {
		if ok {
			fn()
		}
	}, window)
}

func (d RuntimeDependencies) showError(err error) {
	window := d.window()
	if err == nil || window == nil {
		return
	}
	show := d.UIHooks.ShowErrorDialog
	if show == nil {
		show = dialog.ShowError
	}
	show(err, window)
}
