package ui

import "fyne.io/fyne/v2"

// fakeApp records Run, Quit and tray calls and wraps every new window in a
// fakeWindow. It satisfies desktop.App.
type fakeApp struct {
	fyne.App

	runs    int
	quits   int
	windows []*fakeWindow

	trayMenu  *fyne.Menu
	trayIcon  fyne.Resource
	lifecycle fyne.Lifecycle
}

func (a *fakeApp) Run()  { a.runs++ }
func (a *fakeApp) Quit() { a.quits++ }

func (a *fakeApp) NewWindow(title string) fyne.Window {
	w := &fakeWindow{Window: a.App.NewWindow(title)}
	a.windows = append(a.windows, w)

	return w
}

func (a *fakeApp) mainWindow() *fakeWindow {
	if len(a.windows) == 0 {
		return nil
	}

	return a.windows[0]
}

func (a *fakeApp) SetSystemTrayMenu(menu *fyne.Menu)     { a.trayMenu = menu }
func (a *fakeApp) SetSystemTrayIcon(icon fyne.Resource) { a.trayIcon = icon }
func (a *fakeApp) SetSystemTrayWindow(fyne.Window)      {}

func (a *fakeApp) Lifecycle() fyne.Lifecycle {
	if a.lifecycle != nil {
		return a.lifecycle
	}

	return a.App.Lifecycle()
}

// plainApp hides every optional driver interface of the wrapped app.
type plainApp struct {
	fyne.App
}

type fakeWindow struct {
	fyne.Window

	shows, hides, focuses int
	closeIntercept        func()
}

func (w *fakeWindow) Show() {
	w.shows++
	w.Window.Show()
}

func (w *fakeWindow) Hide() {
	w.hides++
	w.Window.Hide()
}

func (w *fakeWindow) RequestFocus() {
	w.focuses++
	w.Window.RequestFocus()
}

func (w *fakeWindow) SetCloseIntercept(fn func()) {
	w.closeIntercept = fn
	w.Window.SetCloseIntercept(fn)
}

type fakeLifecycle struct {
	fyne.Lifecycle

	enteredForeground, exitedForeground func()
}

func (l *fakeLifecycle) SetOnEnteredForeground(fn func()) { l.enteredForeground = fn }
func (l *fakeLifecycle) SetOnExitedForeground(fn func())  { l.exitedForeground = fn }
func (l *fakeLifecycle) SetOnStarted(func())              {}
func (l *fakeLifecycle) SetOnStopped(func())              {}
