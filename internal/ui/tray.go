package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"

	"github.com/skobkin/machinecfg/internal/app"
)

// configureSystemTray installs the tray menu and reports whether the driver
// supports one. onReload may be nil.
func configureSystemTray(fyApp fyne.App, rt *uiRuntime, onReload func()) bool {
	desk, ok := fyApp.(desktop.App)
	if !ok {
		appLogger.Debug("system tray is not supported by the driver")

		return false
	}

	items := []*fyne.MenuItem{fyne.NewMenuItem("Show", rt.ShowWindow)}
	if onReload != nil {
		items = append(items, fyne.NewMenuItem("Reload machine settings", func() {
			rt.ShowWindow()
			onReload()
		}))
	}
	items = append(items, fyne.NewMenuItemSeparator(), fyne.NewMenuItem("Quit", rt.Quit))

	desk.SetSystemTrayIcon(theme.SettingsIcon())
	desk.SetSystemTrayMenu(fyne.NewMenu(app.Name, items...))

	return true
}
