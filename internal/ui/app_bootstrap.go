package ui

import (
	"log/slog"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
)

var appLogger = slog.With("component", "ui")

var newFyneApp = func() fyne.App {
	return fyneapp.NewWithID("io.github.skobkin.machinecfg")
}

// Run builds the main window and blocks until the application quits.
func Run(dep RuntimeDependencies) error {
	// Rebind after the runtime installed its default handler.
	appLogger = slog.Default().With("component", "ui")

	return runWithApp(dep, newFyneApp())
}

func runWithApp(dep RuntimeDependencies, fyApp fyne.App) error {
	fyApp.SetIcon(theme.SettingsIcon())
	appLogger.Info("starting UI runtime", "start_hidden", dep.Launch.StartHidden)

	window := fyApp.NewWindow("")
	window.Resize(fyne.NewSize(900, 700))
	if dep.UIHooks.CurrentWindow == nil {
		dep.UIHooks.CurrentWindow = func() fyne.Window { return window }
	}
	view := buildMainView(dep, window, resolveInitialConnStatus(dep))
	window.SetContent(view.content)

	notices := attachNoticeBridge(dep, fyApp, dep.Launch.StartHidden, view.notice.Show)
	stopListeners := bindViewListeners(dep, view)
	// The panel must be watching before autoload flips it into the loading view.
	view.machineSettings.Start()

	rt := newUIRuntime(fyApp, window, dep.Actions.OnQuit,
		notices.Stop,
		stopListeners,
		view.machineSettings.Stop,
	)
	rt.BindCloseIntercept()
	configureSystemTray(fyApp, rt, func() {
		view.tabs.SelectIndex(0)
		view.machineSettings.onRefresh()
	})

	rt.Run(dep.Launch.StartHidden)

	return nil
}
