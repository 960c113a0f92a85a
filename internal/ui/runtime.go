package ui

import (
	"sync"

	"fyne.io/fyne/v2"
)

// uiRuntime owns the main window. Closing the window hides it to the tray;
// Quit or the end of the fyne event loop runs the teardown once.
type uiRuntime struct {
	fyApp  fyne.App
	window fyne.Window

	// teardown runs in order; UI listeners come before onQuit, which closes
	// the bus they read from.
	teardown []func()
	once     sync.Once
}

func newUIRuntime(fyApp fyne.App, window fyne.Window, onQuit func(), stoppers ...func()) *uiRuntime {
	return &uiRuntime{
		fyApp:    fyApp,
		window:   window,
		teardown: append(append([]func(){}, stoppers...), onQuit),
	}
}

func (r *uiRuntime) BindCloseIntercept() {
	if r.window == nil {
		return
	}
	r.window.SetCloseIntercept(func() {
		appLogger.Debug("main window close intercepted: hiding to tray")
		r.window.Hide()
	})
}

func (r *uiRuntime) ShowWindow() {
	if r.window == nil {
		return
	}
	r.window.Show()
	r.window.RequestFocus()
}

func (r *uiRuntime) Quit() {
	appLogger.Info("quit requested")
	if r.shutdown() && r.fyApp != nil {
		r.fyApp.Quit()
	}
}

// Run blocks in the fyne event loop.
func (r *uiRuntime) Run(startHidden bool) {
	if r.window != nil {
		r.window.Show()
		if startHidden {
			appLogger.Info("starting hidden in the tray")
			r.window.Hide()
		}
	}
	if r.fyApp != nil {
		r.fyApp.Run()
	}
	appLogger.Info("UI event loop finished")
	r.shutdown()
}

// shutdown reports whether this call ran the teardown.
func (r *uiRuntime) shutdown() (first bool) {
	r.once.Do(func() {
		first = true
		for _, fn := range r.teardown {
			if fn != nil {
				fn()
			}
		}
	})

	return first
}
