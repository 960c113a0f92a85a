package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/correlator"
	"github.com/skobkin/machinecfg/internal/device"
	"github.com/skobkin/machinecfg/internal/grbl"
	"github.com/skobkin/machinecfg/internal/notifications"
	"github.com/skobkin/machinecfg/internal/settings"
)

const machineSettingsCatchDomain = "CMD"

var (
	ErrNotEditable  = errors.New("entry is not editable")
	ErrEmptyCommand = errors.New("entry has no command")
)

// CommandSender delivers one command line to the machine.
type CommandSender interface {
	SendCommand(command string) <-chan device.SendResult
}

// ResponseCatcher reserves the reply slot of every command written to the
// machine, collected or not.
type ResponseCatcher interface {
	StartCatch(domain, tag string, filter correlator.FilterFunc) (*correlator.Catch, bool)
	IgnoreReply(domain, command string) *correlator.Catch
}

// SettingsProcessor knows the firmware command syntax.
type SettingsProcessor interface {
	Command(kind string) (grbl.Command, error)
	FormatEeprom(raw string) []*settings.Entry
	UpdateCommand(command, value string) string
}

// MessageCatalog resolves message keys to user-facing text.
type MessageCatalog interface {
	T(id string) string
}

// MachineSettingsState is a snapshot of the fetch state shown by the panel.
type MachineSettingsState struct {
	Loading   bool
	Collected int
}

// CollectedText formats the byte counter, for example "600 B".
func (s MachineSettingsState) CollectedText() string {
	if s.Collected <= 0 {
		return humanize.Bytes(0)
	}

	return humanize.Bytes(uint64(s.Collected))
}

// SubmitResult is the outcome of one field submit.
type SubmitResult struct {
	Command    string
	Validation settings.ValidationState
	Err        error
}

type MachineSettingsDeps struct {
	Store     *settings.Store
	Sender    CommandSender
	Catcher   ResponseCatcher
	Processor SettingsProcessor
	Notifier  notifications.Sender
	Catalog   MessageCatalog
	// Bus receives submit events for the change journal. Optional.
	Bus    bus.MessageBus
	Logger *slog.Logger
	Now    func() time.Time
}

// MachineSettingsController fetches the machine settings into the store, and
// sends single field updates back.
type MachineSettingsController struct {
	store     *settings.Store
	sender    CommandSender
	catcher   ResponseCatcher
	processor SettingsProcessor
	notifier  notifications.Sender
	catalog   MessageCatalog
	bus       bus.MessageBus
	logger    *slog.Logger
	now       func() time.Time

	// sendMu keeps reply slots in the order their commands are queued.
	sendMu sync.Mutex

	mu              sync.Mutex
	state           MachineSettingsState
	catch           *correlator.Catch
	autoloadPending bool

	changes chan struct{}
}

func NewMachineSettingsController(deps MachineSettingsDeps) *MachineSettingsController {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "app.machine_settings")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	store := deps.Store
	if store == nil {
		store = settings.NewStore()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.SenderFunc(func(notifications.Payload) {})
	}

	return &MachineSettingsController{
		store:     store,
		sender:    deps.Sender,
		catcher:   deps.Catcher,
		processor: deps.Processor,
		notifier:  notifier,
		catalog:   deps.Catalog,
		bus:       deps.Bus,
		logger:    logger,
		now:       now,
		changes:   make(chan struct{}, 1),
	}
}

func (c *MachineSettingsController) Store() *settings.Store {
	return c.store
}

func (c *MachineSettingsController) State() MachineSettingsState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Changes signals state updates. Signals are coalesced.
func (c *MachineSettingsController) Changes() <-chan struct{} {
	return c.changes
}

// Refresh queries the settings from the machine. It returns false without
// sending anything when a settings query is already outstanding.
func (c *MachineSettingsController) Refresh(ctx context.Context) bool {
	cmd, err := c.processor.Command(grbl.CommandEeprom)
	if err != nil {
		c.logger.Error("build settings query", "error", err)
		c.notifyError(err.Error())

		return false
	}

	c.sendMu.Lock()
	catch, ok := c.catcher.StartCatch(machineSettingsCatchDomain, grbl.CommandEeprom, grbl.IsNoise)
	if !ok {
		c.sendMu.Unlock()
		c.logger.Debug("settings query already outstanding")

		return false
	}

	c.mu.Lock()
	c.catch = catch
	c.autoloadPending = false
	c.state = MachineSettingsState{Loading: true}
	c.mu.Unlock()

	c.logger.Info("querying machine settings", "command", cmd.Cmd)
	sent := c.sender.SendCommand(cmd.Cmd)
	c.sendMu.Unlock()
	c.signal()
	go c.watchFetch(ctx, catch, sent)

	return true
}

// Cancel abandons the outstanding query and empties the cache.
func (c *MachineSettingsController) Cancel() {
	c.notifyError(c.text("operation.cancelled"))

	c.mu.Lock()
	catch := c.catch
	c.catch = nil
	c.autoloadPending = false
	c.state.Loading = false
	c.store.Clear()
	c.mu.Unlock()

	if catch != nil {
		catch.Stop()
	}
	c.logger.Info("settings query cancelled", "outstanding", catch != nil)
	c.signal()
}

// AutoLoad shows the panel as loading, waits for ready and then queries the
// settings unless the cache was filled in the meantime. It blocks until the
// query is started or skipped and reports whether it was started.
func (c *MachineSettingsController) AutoLoad(ctx context.Context, ready <-chan struct{}) bool {
	if !c.store.Empty() {
		return false
	}

	c.mu.Lock()
	c.autoloadPending = true
	c.state.Loading = true
	c.mu.Unlock()
	c.signal()

	select {
	case <-ctx.Done():
		c.abortAutoload()

		return false
	case <-ready:
	}

	c.mu.Lock()
	pending := c.autoloadPending
	c.mu.Unlock()
	if !pending {
		// Cancelled or superseded by a manual refresh.
		return false
	}
	if !c.store.Empty() {
		c.logger.Debug("autoload skipped: settings already loaded")
		c.abortAutoload()

		return false
	}
	if !c.Refresh(ctx) {
		c.abortAutoload()

		return false
	}

	return true
}

// Edit stores a new value typed by the user and returns its validation.
func (c *MachineSettingsController) Edit(entry *settings.Entry, value string) settings.ValidationState {
	var validation settings.ValidationState
	c.withEntry(entry, func(e *settings.Entry) {
		e.Value = value
		validation = settings.Validate(e)
	})
	c.signal()

	return validation
}

func (c *MachineSettingsController) Validation(entry *settings.Entry) settings.ValidationState {
	var validation settings.ValidationState
	c.withEntry(entry, func(e *settings.Entry) {
		validation = settings.Validate(e)
	})

	return validation
}

// Submit sends the trimmed value of entry to the machine. The returned channel
// yields exactly one result. Transport delivery counts as confirmation: on
// success the submitted value becomes the new initial value. Text typed while
// the update was in flight is kept and stays modified.
func (c *MachineSettingsController) Submit(ctx context.Context, entry *settings.Entry) <-chan SubmitResult {
	resCh := make(chan SubmitResult, 1)
	if entry == nil || !entry.Kind.Editable() {
		resCh <- SubmitResult{Err: ErrNotEditable}
		close(resCh)

		return resCh
	}

	var previous, value, tag string
	c.withEntry(entry, func(e *settings.Entry) {
		previous = e.Initial
		value = strings.TrimSpace(e.Value)
		tag = strings.TrimSpace(e.Command)
	})
	if tag == "" {
		resCh <- SubmitResult{Err: ErrEmptyCommand}
		close(resCh)

		return resCh
	}

	command := c.processor.UpdateCommand(tag, value)
	c.logger.Info("sending setting update", "command", command)
	c.sendMu.Lock()
	slot := c.catcher.IgnoreReply(machineSettingsCatchDomain, command)
	sent := c.sender.SendCommand(command)
	c.sendMu.Unlock()

	go func() {
		defer close(resCh)

		var sendErr error
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
		case res, ok := <-sent:
			if !ok {
				sendErr = fmt.Errorf("send %q: result channel closed", command)
			} else if res.Err != nil {
				slot.Withdraw()
				sendErr = res.Err
			}
		}

		if sendErr != nil {
			c.logger.Warn("setting update failed", "command", command, "error", sendErr)
			c.notifyError(fmt.Sprintf("%s: %v", c.text("submit.failed"), sendErr))
			c.publishSubmit(connectors.SubmitEvent{
				Command:  tag,
				Previous: previous,
				Value:    value,
				Outcome:  connectors.SubmitFailed,
				Err:      sendErr.Error(),
				At:       c.now(),
			})
			resCh <- SubmitResult{Command: command, Validation: c.Validation(entry), Err: sendErr}

			return
		}

		var validation settings.ValidationState
		c.withEntry(entry, func(e *settings.Entry) {
			if strings.TrimSpace(e.Value) == value {
				e.Value = value
			}
			e.Initial = value
			validation = settings.Validate(e)
		})
		c.signal()
		c.logger.Info("setting update sent", "command", command)
		c.publishSubmit(connectors.SubmitEvent{
			Command:  tag,
			Previous: previous,
			Value:    value,
			Outcome:  connectors.SubmitApplied,
			At:       c.now(),
		})
		resCh <- SubmitResult{Command: command, Validation: validation}
	}()

	return resCh
}

// watchFetch follows one settings query until its reply or its abandonment.
// An abandoned query is still watched until the write outcome is known, so the
// slot of a command that never reached the wire is released.
func (c *MachineSettingsController) watchFetch(ctx context.Context, catch *correlator.Catch, sent <-chan device.SendResult) {
	stopped := catch.Stopped()
	for {
		select {
		case <-ctx.Done():
			catch.Stop()
			if c.finishFetch(catch) {
				c.logger.Info("settings query abandoned", "reason", context.Cause(ctx))
			}

			return
		case <-stopped:
			if sent == nil {
				return
			}
			stopped = nil
		case res, ok := <-sent:
			sent = nil
			if ok && res.Err != nil {
				catch.Withdraw()
				if c.finishFetch(catch) {
					c.logger.Warn("settings query send failed", "error", res.Err)
					c.notifyError(res.Err.Error())
				}

				return
			}
			if stopped == nil {
				return
			}
		case progress := <-catch.Progress():
			c.updateCollected(catch, progress.Total)
		case feedback := <-catch.Done():
			c.handleFeedback(catch, feedback)

			return
		}
	}
}

func (c *MachineSettingsController) updateCollected(catch *correlator.Catch, total int) {
	c.mu.Lock()
	if c.catch != catch {
		c.mu.Unlock()

		return
	}
	c.state.Collected = total
	c.mu.Unlock()
	c.signal()
}

func (c *MachineSettingsController) handleFeedback(catch *correlator.Catch, feedback correlator.Feedback) {
	loaded := feedback.Status == correlator.StatusOK && feedback.Command == grbl.CommandEeprom
	var parsed []*settings.Entry
	if loaded {
		parsed = c.processor.FormatEeprom(feedback.Content)
	}

	c.mu.Lock()
	if c.catch != catch {
		c.mu.Unlock()
		c.logger.Debug("stale settings reply dropped", "status", feedback.Status)

		return
	}
	c.catch = nil
	c.state.Loading = false
	c.state.Collected = feedback.Total
	if loaded {
		c.store.Replace(parsed)
	}
	c.mu.Unlock()
	c.signal()

	switch feedback.Status {
	case correlator.StatusError:
		c.logger.Warn("settings query failed", "content", feedback.Content)
		if strings.TrimSpace(feedback.Content) != "" {
			c.notifyError(fmt.Sprintf("%s:%s", c.text("error.prefix"), c.text(feedback.Content)))
		} else {
			c.notifyError(c.text("fetch.failed"))
		}
	case correlator.StatusOK:
		if loaded {
			c.logger.Info("machine settings loaded", "entries", len(parsed), "bytes", len(feedback.Content))
		}
	}
}

// finishFetch ends loading when catch is still the current query.
func (c *MachineSettingsController) finishFetch(catch *correlator.Catch) bool {
	c.mu.Lock()
	if c.catch != catch {
		c.mu.Unlock()

		return false
	}
	c.catch = nil
	c.state.Loading = false
	c.mu.Unlock()
	c.signal()

	return true
}

func (c *MachineSettingsController) abortAutoload() {
	c.mu.Lock()
	c.autoloadPending = false
	if c.catch == nil {
		c.state.Loading = false
	}
	c.mu.Unlock()
	c.signal()
}

// withEntry runs fn under the store lock while entry is cached. Entries dropped
// by a later fetch are owned by the caller alone and are touched directly.
func (c *MachineSettingsController) withEntry(entry *settings.Entry, fn func(*settings.Entry)) {
	if entry == nil {
		return
	}
	if !c.store.Edit(entry, fn) {
		fn(entry)
	}
}

func (c *MachineSettingsController) publishSubmit(event connectors.SubmitEvent) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(connectors.TopicSubmit, event)
}

func (c *MachineSettingsController) notifyError(content string) {
	c.notifier.Send(notifications.Payload{
		Level:   notifications.LevelError,
		Title:   c.text("settings.title"),
		Content: content,
	})
}

func (c *MachineSettingsController) text(id string) string {
	if c.catalog == nil {
		return id
	}

	return c.catalog.T(id)
}

func (c *MachineSettingsController) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
