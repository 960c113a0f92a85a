package ui

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/dustin/go-humanize"

	"github.com/skobkin/machinecfg/internal/app"
	"github.com/skobkin/machinecfg/internal/connectors"
)

const historyLoadTimeout = 5 * time.Second

// historyTab lists the change journal, newest first.
type historyTab struct {
	dep RuntimeDependencies

	events []connectors.SubmitEvent

	list         *widget.List
	status       *widget.Label
	reloadButton *widget.Button
	clearButton  *widget.Button
	content      fyne.CanvasObject
}

func newHistoryTab(dep RuntimeDependencies) *historyTab {
	h := &historyTab{dep: dep}

	h.status = widget.NewLabel("")
	h.list = widget.NewList(
		func() int {
			return len(h.events)
		},
		func() fyne.CanvasObject {
			label := widget.NewLabel(" ")
			label.Truncation = fyne.TextTruncateEllipsis

			return label
		},
		func(id widget.ListItemID, object fyne.CanvasObject) {
			label, ok := object.(*widget.Label)
			if !ok {
				return
			}
			if id < 0 || id >= len(h.events) {
				label.SetText("")

				return
			}
			label.SetText(h.formatRow(h.events[id]))
		},
	)

	h.reloadButton = widget.NewButtonWithIcon(dep.text("action.refresh"), theme.ViewRefreshIcon(), h.Reload)
	h.clearButton = widget.NewButtonWithIcon(dep.text("history.clear"), theme.DeleteIcon(), h.clearHistory)
	if dep.Actions.OnClearHistory == nil {
		h.clearButton.Disable()
	}

	toolbar := container.NewHBox(h.reloadButton, h.clearButton)
	h.content = container.NewBorder(toolbar, h.status, nil, nil, h.list)

	return h
}

func (h *historyTab) Content() fyne.CanvasObject {
	return h.content
}

// Reload must be called on the UI goroutine. The journal is read asynchronously.
func (h *historyTab) Reload() {
	load := h.dep.Data.LoadHistory
	if load == nil {
		h.status.SetText(h.dep.text("history.unavailable"))

		return
	}

	runOnUI := h.dep.runOnUI()
	h.dep.runAsync()(func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyLoadTimeout)
		defer cancel()

		events, err := load(ctx, app.HistoryLimit)
		runOnUI(func() {
			h.apply(events, err)
		})
	})
}

func (h *historyTab) apply(events []connectors.SubmitEvent, err error) {
	if err != nil {
		appLogger.Warn("load settings history", "error", err)
		h.status.SetText(fmt.Sprintf("%s: %v", h.dep.text("history.failed"), err))

		return
	}

	h.events = events
	h.list.Refresh()
	if len(events) == 0 {
		h.status.SetText(h.dep.text("history.empty"))

		return
	}
	h.status.SetText("")
}

func (h *historyTab) clearHistory() {
	if h.dep.Actions.OnClearHistory == nil {
		return
	}
	h.dep.confirm(h.dep.text("history.clear"), h.dep.text("history.clear.confirm"), func() {
		if err := h.dep.Actions.OnClearHistory(); err != nil {
			h.status.SetText(fmt.Sprintf("%s: %v", h.dep.text("history.failed"), err))

			return
		}
		h.Reload()
	})
}

func (h *historyTab) formatRow(event connectors.SubmitEvent) string {
	text := fmt.Sprintf("%s  %s: %s -> %s", humanize.Time(event.At), event.Command, event.Previous, event.Value)
	if event.Outcome == connectors.SubmitFailed {
		text += "  " + h.dep.text("history.outcome.failed")
		if event.Err != "" {
			text += " (" + event.Err + ")"
		}

		return text
	}

	return text + "  " + h.dep.text("history.outcome.applied")
}
