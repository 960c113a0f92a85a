package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/skobkin/machinecfg/internal/settings"
)

const machineSettingsSubmitTimeout = 10 * time.Second

// MachineSettingsTab shows the collecting view while a query is outstanding and
// the editable settings list otherwise. All widget updates run through RunOnUI.
type MachineSettingsTab struct {
	dep      RuntimeDependencies
	ctrl     MachineSettings
	runOnUI  func(func())
	runAsync func(func())

	ctx    context.Context
	cancel context.CancelFunc

	progress       *widget.ProgressBarInfinite
	collectedLabel *widget.Label
	cancelButton   *widget.Button
	collectingView *fyne.Container

	refreshButton *widget.Button
	unsavedLabel  *widget.Label
	emptyLabel    *widget.Label
	rowsBox       *fyne.Container
	listView      *fyne.Container

	content *fyne.Container

	rows      []*settingsRow
	startOnce sync.Once
	stopOnce  sync.Once
}

type settingsRow struct {
	entry   *settings.Entry
	caption *widget.Label
	input   *widget.Entry
	send    *widget.Button
	hint    *widget.Label
	ready   *widget.Icon
	object  fyne.CanvasObject

	validation settings.ValidationState
	pending    bool
}

func NewMachineSettingsTab(dep RuntimeDependencies) *MachineSettingsTab {
	ctx, cancel := context.WithCancel(context.Background())
	t := &MachineSettingsTab{
		dep:      dep,
		ctrl:     dep.Data.MachineSettings,
		runOnUI:  dep.runOnUI(),
		runAsync: dep.runAsync(),
		ctx:      ctx,
		cancel:   cancel,
	}

	t.progress = widget.NewProgressBarInfinite()
	t.progress.Stop()
	t.collectedLabel = widget.NewLabel("")
	t.collectedLabel.Alignment = fyne.TextAlignCenter
	t.cancelButton = widget.NewButtonWithIcon(dep.text("action.cancel"), theme.CancelIcon(), t.onCancel)
	t.collectingView = container.NewVBox(
		layout.NewSpacer(),
		t.progress,
		t.collectedLabel,
		container.NewCenter(t.cancelButton),
		layout.NewSpacer(),
	)
	t.collectingView.Hide()

	t.refreshButton = widget.NewButtonWithIcon(dep.text("action.refresh"), theme.ViewRefreshIcon(), t.onRefresh)
	t.unsavedLabel = widget.NewLabel(dep.text("settings.unsaved"))
	t.unsavedLabel.Importance = widget.WarningImportance
	t.unsavedLabel.Hide()
	t.emptyLabel = widget.NewLabel(dep.text("settings.empty"))
	t.rowsBox = container.NewVBox()
	t.listView = container.NewBorder(
		container.NewHBox(t.refreshButton, t.unsavedLabel),
		nil,
		nil,
		nil,
		container.NewVScroll(container.NewVBox(t.emptyLabel, t.rowsBox)),
	)

	t.content = container.NewStack(t.listView, t.collectingView)
	if t.ctrl == nil {
		t.refreshButton.Disable()
	}

	return t
}

func (t *MachineSettingsTab) Content() fyne.CanvasObject {
	return t.content
}

// Start draws the current cache, follows controller and store changes, and
// triggers the autoload when it is enabled. It must be called on the UI goroutine.
func (t *MachineSettingsTab) Start() {
	if t.ctrl == nil {
		return
	}
	t.startOnce.Do(func() {
		t.rebuildRows()
		t.render()
		go t.watch()

		ready := t.dep.Data.Ready
		if t.dep.Data.Config.UI.Autoload && ready != nil {
			t.runAsync(func() {
				started := t.ctrl.AutoLoad(t.ctx, ready)
				appLogger.Debug("machine settings autoload finished", "started", started)
			})
		}
	})
}

// Stop abandons any query started from the panel.
func (t *MachineSettingsTab) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
	})
}

func (t *MachineSettingsTab) watch() {
	stateChanges := t.ctrl.Changes()
	storeChanges := t.ctrl.Store().Changes()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-stateChanges:
			t.runOnUI(t.render)
		case <-storeChanges:
			t.runOnUI(func() {
				t.rebuildRows()
				t.render()
			})
		}
	}
}

func (t *MachineSettingsTab) render() {
	state := t.ctrl.State()
	if state.Loading {
		t.collectedLabel.SetText(t.dep.text("settings.collecting") + " " + state.CollectedText())
		if !t.collectingView.Visible() {
			t.listView.Hide()
			t.collectingView.Show()
			t.progress.Start()
		}

		return
	}

	if t.collectingView.Visible() {
		t.progress.Stop()
		t.collectingView.Hide()
		t.listView.Show()
	}
	t.refreshRows()
}

func (t *MachineSettingsTab) rebuildRows() {
	entries := t.ctrl.Store().Entries()
	t.rows = t.rows[:0]
	objects := make([]fyne.CanvasObject, 0, len(entries))
	for _, entry := range entries {
		if !entry.Kind.Editable() {
			comment := widget.NewLabel(t.commentText(entry.Value))
			comment.Wrapping = fyne.TextWrapWord
			comment.Importance = widget.LowImportance
			objects = append(objects, comment)

			continue
		}
		row := t.newSettingsRow(entry)
		t.rows = append(t.rows, row)
		objects = append(objects, row.object)
	}

	t.rowsBox.Objects = objects
	t.rowsBox.Refresh()
	setVisible(len(entries) == 0, t.emptyLabel)
	t.updateUnsaved()
}

func (t *MachineSettingsTab) newSettingsRow(entry *settings.Entry) *settingsRow {
	row := &settingsRow{entry: entry}

	caption := entry.Command
	if label := strings.TrimSpace(entry.Label); label != "" {
		caption += "  " + label
	}
	row.caption = widget.NewLabel(caption)
	row.caption.TextStyle = fyne.TextStyle{Bold: true}
	row.caption.Truncation = fyne.TextTruncateEllipsis

	row.input = widget.NewEntry()
	row.input.SetText(t.entryValue(entry))
	row.input.OnChanged = func(text string) {
		t.applyValidation(row, t.ctrl.Edit(entry, text))
		t.updateUnsaved()
	}
	row.input.OnSubmitted = func(string) {
		t.submit(row)
	}

	row.send = widget.NewButtonWithIcon(t.dep.text("action.send"), theme.UploadIcon(), func() {
		t.submit(row)
	})
	row.hint = widget.NewLabel("")
	row.hint.Importance = widget.DangerImportance
	row.hint.Hide()
	row.ready = widget.NewIcon(theme.ConfirmIcon())
	row.ready.Hide()

	row.object = container.NewVBox(
		row.caption,
		container.NewBorder(nil, nil, nil, container.NewHBox(row.ready, row.send), row.input),
		row.hint,
	)
	t.applyValidation(row, t.ctrl.Validation(entry))

	return row
}

func (t *MachineSettingsTab) refreshRows() {
	for _, row := range t.rows {
		if value := t.entryValue(row.entry); row.input.Text != value {
			row.input.SetText(value)
		}
		t.applyValidation(row, t.ctrl.Validation(row.entry))
	}
	t.updateUnsaved()
}

func (t *MachineSettingsTab) applyValidation(row *settingsRow, validation settings.ValidationState) {
	row.validation = validation

	switch validation.Message {
	case settings.MessageRequired:
		row.hint.SetText(t.dep.text("field.required"))
		row.hint.Show()
		row.ready.Hide()
	case settings.MessageReady:
		row.hint.Hide()
		row.ready.Show()
	default:
		row.hint.Hide()
		row.ready.Hide()
	}

	if validation.Valid && !row.pending {
		row.send.Enable()
	} else {
		row.send.Disable()
	}
}

func (t *MachineSettingsTab) updateUnsaved() {
	unsaved := false
	for _, row := range t.rows {
		if row.validation.Modified {
			unsaved = true

			break
		}
	}

	setVisible(unsaved, t.unsavedLabel)
	if unsaved {
		t.refreshButton.Importance = widget.WarningImportance
	} else {
		t.refreshButton.Importance = widget.MediumImportance
	}
	t.refreshButton.Refresh()
}

func (t *MachineSettingsTab) submit(row *settingsRow) {
	if row.pending {
		return
	}
	validation := t.ctrl.Validation(row.entry)
	if !validation.Valid {
		t.applyValidation(row, validation)

		return
	}

	row.pending = true
	row.send.Disable()

	ctx, cancel := context.WithTimeout(t.ctx, machineSettingsSubmitTimeout)
	results := t.ctrl.Submit(ctx, row.entry)
	t.runAsync(func() {
		defer cancel()

		result, ok := <-results
		t.runOnUI(func() {
			row.pending = false
			if !ok {
				t.applyValidation(row, t.ctrl.Validation(row.entry))

				return
			}
			if result.Err != nil {
				appLogger.Debug("setting submit failed", "command", result.Command, "error", result.Err)
			}
			// Trims the submitted text only. Newer typing is left as is.
			if value := t.entryValue(row.entry); row.input.Text != value && strings.TrimSpace(row.input.Text) == value {
				row.input.SetText(value)
			}
			t.applyValidation(row, result.Validation)
			t.updateUnsaved()
		})
	})
}

func (t *MachineSettingsTab) onRefresh() {
	if t.ctrl == nil {
		return
	}
	if !t.ctrl.Refresh(t.ctx) {
		appLogger.Debug("machine settings refresh refused: query outstanding")
	}
}

func (t *MachineSettingsTab) onCancel() {
	if t.ctrl == nil {
		return
	}
	t.ctrl.Cancel()
}

// commentText shows the localized line followed by the raw one when a
// translation exists.
func (t *MachineSettingsTab) commentText(raw string) string {
	localized := t.dep.text(raw)
	if localized == raw {
		return raw
	}

	return fmt.Sprintf("%s (%s)", localized, raw)
}

func (t *MachineSettingsTab) entryValue(entry *settings.Entry) string {
	var value string
	if !t.ctrl.Store().Edit(entry, func(e *settings.Entry) {
		value = e.Value
	}) {
		value = entry.Value
	}

	return value
}
