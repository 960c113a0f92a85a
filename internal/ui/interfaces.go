package ui

import (
	"context"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/settings"
)

// MachineSettings is the controller surface the settings panel drives.
type MachineSettings interface {
	Store() *settings.Store
	State() app.MachineSettingsState
	Changes() <-chan struct{}
	Refresh(ctx context.Context) bool
	Cancel()
	AutoLoad(ctx context.Context, ready <-chan struct{}) bool
	Edit(entry *settings.Entry, value string) settings.ValidationState
	Validation(entry *settings.Entry) settings.ValidationState
	Submit(ctx context.Context, entry *settings.Entry) <-chan app.SubmitResult
}
