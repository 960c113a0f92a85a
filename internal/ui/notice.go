package ui

import (
	"strings"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/notifications"
)

// noticeBar shows the latest notification inside the window.
type noticeBar struct {
	icon    *widget.Icon
	label   *widget.Label
	dismiss *widget.Button
	box     *fyne.Container
}

func newNoticeBar() *noticeBar {
	n := &noticeBar{
		icon:  widget.NewIcon(theme.InfoIcon()),
		label: widget.NewLabel(""),
	}
	n.label.Wrapping = fyne.TextWrapWord
	n.dismiss = widget.NewButtonWithIcon("", theme.CancelIcon(), n.Hide)
	n.dismiss.Importance = widget.LowImportance
	n.box = container.NewBorder(nil, nil, n.icon, n.dismiss, n.label)
	n.box.Hide()

	return n
}

func (n *noticeBar) Content() fyne.CanvasObject {
	return n.box
}

// Show must run on the UI goroutine. Empty payloads are ignored.
func (n *noticeBar) Show(payload notifications.Payload) {
	text := noticeText(payload)
	if text == "" {
		return
	}

	icon := theme.InfoIcon()
	if payload.Level == notifications.LevelError {
		icon = theme.ErrorIcon()
	}
	n.icon.SetResource(icon)
	n.label.SetText(text)
	n.box.Show()
}

func (n *noticeBar) Hide() {
	n.label.SetText("")
	n.box.Hide()
}

func (n *noticeBar) Text() string {
	return n.label.Text
}

func noticeText(payload notifications.Payload) string {
	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	switch {
	case title == "":
		return content
	case content == "":
		return title
	default:
		return title + ": " + content
	}
}

// noticeBridge feeds runtime notifications into the notice bar while the
// window is in the foreground. Desktop notifications cover the rest.
type noticeBridge struct {
	foreground atomic.Bool
	stopped    atomic.Bool
	runOnUI    func(func())
	show       func(notifications.Payload)
}

func attachNoticeBridge(dep RuntimeDependencies, fyApp fyne.App, startHidden bool, show func(notifications.Payload)) *noticeBridge {
	b := &noticeBridge{runOnUI: dep.runOnUI(), show: show}
	b.foreground.Store(!startHidden)

	lifecycle := fyApp.Lifecycle()
	lifecycle.SetOnEnteredForeground(func() { b.foreground.Store(true) })
	lifecycle.SetOnExitedForeground(func() { b.foreground.Store(false) })

	if dep.Actions.AddNotifier != nil && show != nil {
		dep.Actions.AddNotifier(notifications.SenderFunc(b.deliver))
	}

	return b
}

func (b *noticeBridge) deliver(payload notifications.Payload) {
	if b.stopped.Load() || !b.foreground.Load() {
		return
	}
	b.runOnUI(func() { b.show(payload) })
}

// Stop detaches the bar. The notifier stays registered but drops everything.
func (b *noticeBridge) Stop() {
	b.stopped.Store(true)
}
