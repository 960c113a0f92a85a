package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/connectors"
)

type mainView struct {
	content             fyne.CanvasObject
	tabs                *container.AppTabs
	machineSettings     *MachineSettingsTab
	history             *historyTab
	connStatusPresenter *connectionStatusPresenter
	notice              *noticeBar
}

func buildMainView(
	dep RuntimeDependencies,
	window fyne.Window,
	initialStatus connectors.ConnectionStatus,
) mainView {
	settingsConnStatus := widget.NewLabel("")
	settingsConnStatus.Truncation = fyne.TextTruncateEllipsis

	machineSettings := NewMachineSettingsTab(dep)
	history := newHistoryTab(dep)
	settingsTab := newSettingsTab(dep, settingsConnStatus)

	historyItem := container.NewTabItemWithIcon(dep.text("tab.history"), theme.HistoryIcon(), history.Content())
	tabs := container.NewAppTabs(
		container.NewTabItemWithIcon(dep.text("tab.machine"), theme.SettingsIcon(), machineSettings.Content()),
		historyItem,
		container.NewTabItemWithIcon(dep.text("tab.app"), theme.ComputerIcon(), settingsTab),
	)
	tabs.SetTabLocation(container.TabLocationLeading)
	tabs.OnSelected = func(item *container.TabItem) {
		if item == historyItem {
			history.Reload()
		}
	}

	notice := newNoticeBar()
	connStatusPresenter := newConnectionStatusPresenter(window, settingsConnStatus, initialStatus)

	return mainView{
		content:             container.NewBorder(nil, notice.Content(), nil, nil, tabs),
		tabs:                tabs,
		machineSettings:     machineSettings,
		history:             history,
		connStatusPresenter: connStatusPresenter,
		notice:              notice,
	}
}
