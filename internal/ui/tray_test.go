package ui

import (
	"testing"

	fynetest "fyne.io/fyne/v2/test"
)

func trayItems(t *testing.T, fake *fakeApp) map[string]func() {
	t.Helper()

	if fake.trayMenu == nil {
		t.Fatalf("expected tray menu to be configured")
	}
	items := make(map[string]func())
	for _, item := range fake.trayMenu.Items {
		if item.IsSeparator {
			continue
		}
		items[item.Label] = item.Action
	}

	return items
}

func TestConfigureSystemTray(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)
	fake := &fakeApp{App: base}
	window := fake.NewWindow("tray").(*fakeWindow)

	var quits, reloads int
	rt := newUIRuntime(fake, window, func() { quits++ })
	if !configureSystemTray(fake, rt, func() { reloads++ }) {
		t.Fatalf("expected tray to be configured for a desktop app")
	}
	if fake.trayIcon == nil {
		t.Fatalf("expected tray icon to be set")
	}

	items := trayItems(t, fake)
	if len(items) != 3 {
		t.Fatalf("expected show, reload and quit items, got %v", len(items))
	}

	items["Show"]()
	if window.shows != 1 || window.focuses != 1 {
		t.Fatalf("show item: shows=%d focuses=%d", window.shows, window.focuses)
	}

	items["Reload machine settings"]()
	if reloads != 1 || window.shows != 2 {
		t.Fatalf("reload item: reloads=%d shows=%d", reloads, window.shows)
	}

	items["Quit"]()
	if quits != 1 || fake.quits != 1 {
		t.Fatalf("quit item: teardown=%d app quits=%d", quits, fake.quits)
	}
}

func TestConfigureSystemTrayWithoutReload(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)
	fake := &fakeApp{App: base}

	configureSystemTray(fake, newUIRuntime(fake, nil, nil), nil)
	if _, ok := trayItems(t, fake)["Reload machine settings"]; ok {
		t.Fatalf("reload item must be omitted without a callback")
	}
}

func TestConfigureSystemTrayNonDesktopApp(t *testing.T) {
	base := fynetest.NewApp()
	t.Cleanup(base.Quit)

	if configureSystemTray(&plainApp{App: base}, newUIRuntime(base, nil, nil), nil) {
		t.Fatalf("expected tray setup to be skipped")
	}
}
