package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/correlator"
	"github.com/skobkin/machinecfg/internal/device"
	"github.com/skobkin/machinecfg/internal/grbl"
	"github.com/skobkin/machinecfg/internal/notifications"
	"github.com/skobkin/machinecfg/internal/settings"
)

type fakeCommandSender struct {
	mu       sync.Mutex
	commands []string
	errFor   func(command string) error
	// hold delays write results until closed.
	hold chan struct{}
}

func (s *fakeCommandSender) SendCommand(command string) <-chan device.SendResult {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	errFor := s.errFor
	hold := s.hold
	s.mu.Unlock()

	var err error
	if errFor != nil {
		err = errFor(command)
	}
	ch := make(chan device.SendResult, 1)
	if hold == nil {
		ch <- device.SendResult{Command: command, Err: err}
		close(ch)

		return ch
	}
	go func() {
		<-hold
		ch <- device.SendResult{Command: command, Err: err}
		close(ch)
	}()

	return ch
}

func (s *fakeCommandSender) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

func (s *fakeCommandSender) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errFor = func(string) error { return err }
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notifications.Payload
}

func (n *recordingNotifier) Send(payload notifications.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
}

func (n *recordingNotifier) Payloads() []notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]notifications.Payload(nil), n.payloads...)
}

type mapCatalog map[string]string

func (m mapCatalog) T(id string) string {
	if text, ok := m[id]; ok {
		return text
	}

	return id
}

type machineSettingsFixture struct {
	controller *MachineSettingsController
	correlator *correlator.Correlator
	store      *settings.Store
	sender     *fakeCommandSender
	notifier   *recordingNotifier
}

func newMachineSettingsFixture(t *testing.T, messageBus bus.MessageBus) *machineSettingsFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx := &machineSettingsFixture{
		correlator: correlator.New(messageBus, logger),
		store:      settings.NewStore(),
		sender:     &fakeCommandSender{},
		notifier:   &recordingNotifier{},
	}
	fx.controller = NewMachineSettingsController(MachineSettingsDeps{
		Store:     fx.store,
		Sender:    fx.sender,
		Catcher:   fx.correlator,
		Processor: grbl.NewProcessor(),
		Notifier:  fx.notifier,
		Catalog: mapCatalog{
			"error.prefix":        "Error",
			"fetch.failed":        "Operation failed",
			"operation.cancelled": "Operation cancelled",
			"submit.failed":       "Update failed",
			"grbl.error.9":        "G-code locked out during alarm or jog state",
		},
		Bus:    messageBus,
		Logger: logger,
		Now:    func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})

	return fx
}

func waitForCondition(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition was not met before timeout")
}

func TestMachineSettingsRefresh_LoadsSettings(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	if got := fx.sender.Commands(); len(got) != 1 || got[0] != "$$" {
		t.Fatalf("unexpected commands sent: %v", got)
	}
	if state := fx.controller.State(); !state.Loading || state.Collected != 0 {
		t.Fatalf("unexpected state after start: %+v", state)
	}

	// Three chunks bringing the counter to 100, 250 and 600 bytes.
	fx.correlator.HandleLine("$0=" + strings.Repeat("1", 96))
	fx.correlator.HandleLine("$1=" + strings.Repeat("2", 146))
	fx.correlator.HandleLine("$2=" + strings.Repeat("3", 346))
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })

	state := fx.controller.State()
	if state.Collected != 600 {
		t.Fatalf("expected 600 collected bytes, got %d", state.Collected)
	}
	if got := state.CollectedText(); got != "600 B" {
		t.Fatalf("unexpected collected text: %q", got)
	}
	entries := fx.store.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 cached entries, got %d", len(entries))
	}
	if entries[0].Command != "$0" || entries[2].Command != "$2" {
		t.Fatalf("unexpected cached entries: %+v %+v", *entries[0], *entries[2])
	}
	if len(fx.notifier.Payloads()) != 0 {
		t.Fatalf("expected no notifications, got %+v", fx.notifier.Payloads())
	}
}

func TestMachineSettingsRefresh_ReplacesPreviousCache(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	fx.store.Replace([]*settings.Entry{settings.NewText("$99", "", "old"), settings.NewComment("stale")})

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.correlator.HandleLine("$0=10")
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	entries := fx.store.Entries()
	if len(entries) != 1 || entries[0].Command != "$0" {
		t.Fatalf("expected cache to be replaced, got %d entries", len(entries))
	}
}

func TestMachineSettingsRefresh_RefusedWhileOutstanding(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected first refresh to start")
	}
	fx.correlator.HandleLine("$0=10")
	waitForCondition(t, func() bool { return fx.controller.State().Collected == 6 })

	if fx.controller.Refresh(ctx) {
		t.Fatalf("expected second refresh to be refused")
	}
	if got := fx.sender.Commands(); len(got) != 1 {
		t.Fatalf("expected a single command, got %v", got)
	}
	if state := fx.controller.State(); !state.Loading || state.Collected != 6 {
		t.Fatalf("refused refresh changed state: %+v", state)
	}
	if len(fx.notifier.Payloads()) != 0 {
		t.Fatalf("refused refresh must stay silent")
	}
}

func TestMachineSettingsCancel_DropsLateReply(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	fx.store.Replace([]*settings.Entry{settings.NewText("$0", "", "10")})

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.correlator.HandleLine("$0=10")
	fx.controller.Cancel()

	if state := fx.controller.State(); state.Loading {
		t.Fatalf("expected loading to end on cancel")
	}
	if !fx.store.Empty() {
		t.Fatalf("expected cache to be cleared on cancel")
	}
	payloads := fx.notifier.Payloads()
	if len(payloads) != 1 || payloads[0].Content != "Operation cancelled" {
		t.Fatalf("unexpected cancel notification: %+v", payloads)
	}
	if fx.correlator.Outstanding(grbl.CommandEeprom) {
		t.Fatalf("expected the catch to be released")
	}

	fx.correlator.HandleLine("$1=25")
	fx.correlator.HandleLine("ok")
	time.Sleep(50 * time.Millisecond)
	if !fx.store.Empty() {
		t.Fatalf("late reply repopulated the cache")
	}
	if fx.controller.State().Loading {
		t.Fatalf("late reply changed loading state")
	}
}

func TestMachineSettingsRefresh_AfterCancelIgnoresStaleTail(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.correlator.HandleLine("$0=10")
	fx.controller.Cancel()
	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh after cancel to start")
	}

	// Rest of the cancelled reply.
	fx.correlator.HandleLine("$1=25")
	fx.correlator.HandleLine("ok")
	time.Sleep(50 * time.Millisecond)
	if !fx.controller.State().Loading || !fx.store.Empty() {
		t.Fatalf("stale reply completed the new query: loading=%v entries=%d", fx.controller.State().Loading, fx.store.Len())
	}

	fx.correlator.HandleLine("$0=10")
	fx.correlator.HandleLine("$1=25")
	fx.correlator.HandleLine("$100=250.000")
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	entries := fx.store.Entries()
	if len(entries) != 3 || entries[0].Command != "$0" || entries[2].Command != "$100" {
		t.Fatalf("expected the full reply to be cached, got %d entries", len(entries))
	}
}

func TestMachineSettingsRefresh_IgnoresUpdateAcknowledgement(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	entry := settings.NewText("$110", "", "500")
	fx.store.Replace([]*settings.Entry{entry})
	fx.controller.Edit(entry, "600")

	if result := <-fx.controller.Submit(ctx, entry); result.Err != nil {
		t.Fatalf("unexpected submit error: %v", result.Err)
	}
	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}

	// Acknowledgement of $110=600.
	fx.correlator.HandleLine("ok")
	time.Sleep(50 * time.Millisecond)
	if !fx.controller.State().Loading || fx.store.Len() != 1 {
		t.Fatalf("update acknowledgement completed the query: loading=%v entries=%d", fx.controller.State().Loading, fx.store.Len())
	}

	fx.correlator.HandleLine("$0=10")
	fx.correlator.HandleLine("$110=600.000")
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	if got := fx.store.Len(); got != 2 {
		t.Fatalf("expected 2 cached entries, got %d", got)
	}
	if got := fx.correlator.Queued(); got != 0 {
		t.Fatalf("expected every reply slot to be released, %d queued", got)
	}
}

func TestMachineSettingsRefresh_CollectedMatchesLongReply(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)

	if !fx.controller.Refresh(context.Background()) {
		t.Fatalf("expected refresh to start")
	}
	want := 0
	for i := 0; i < 150; i++ {
		line := fmt.Sprintf("$%d=%d.000", i, i*7)
		fx.correlator.HandleLine(line)
		want += len(line) + 1
	}
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	if got := fx.controller.State().Collected; got != want {
		t.Fatalf("expected %d collected bytes, got %d", want, got)
	}
	if got := fx.store.Len(); got != 150 {
		t.Fatalf("expected 150 cached entries, got %d", got)
	}
}

func TestMachineSettingsRefresh_DeviceError(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	fx.store.Replace([]*settings.Entry{settings.NewText("$0", "", "10")})

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.correlator.HandleLine("error:9")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	waitForCondition(t, func() bool { return len(fx.notifier.Payloads()) == 1 })

	payload := fx.notifier.Payloads()[0]
	if payload.Level != notifications.LevelError {
		t.Fatalf("expected error level, got %q", payload.Level)
	}
	if payload.Content != "Error:G-code locked out during alarm or jog state" {
		t.Fatalf("unexpected error content: %q", payload.Content)
	}
	if fx.store.Len() != 1 {
		t.Fatalf("device error must leave the cache untouched")
	}
}

func TestMachineSettingsRefresh_SendFailure(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	fx.sender.failWith(errors.New("port closed"))

	if !fx.controller.Refresh(context.Background()) {
		t.Fatalf("expected refresh to start")
	}

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	waitForCondition(t, func() bool { return len(fx.notifier.Payloads()) == 1 })

	if got := fx.notifier.Payloads()[0].Content; got != "port closed" {
		t.Fatalf("unexpected failure detail: %q", got)
	}
	if fx.correlator.Outstanding(grbl.CommandEeprom) {
		t.Fatalf("expected the catch to be abandoned after send failure")
	}
	if !fx.controller.Refresh(context.Background()) {
		t.Fatalf("expected a retry to be accepted")
	}
}

func TestMachineSettingsRefresh_ContextCancelReleasesCatch(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	cancel()

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	if fx.correlator.Outstanding(grbl.CommandEeprom) {
		t.Fatalf("expected the catch to be released")
	}
}

func TestMachineSettingsEdit_RequiredThenRestored(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	entry := settings.NewText("$110", "", "1000")
	fx.store.Replace([]*settings.Entry{entry})

	got := fx.controller.Edit(entry, "")
	if got.Valid || got.Message != settings.MessageRequired {
		t.Fatalf("expected required state, got %+v", got)
	}
	if !entry.HasError {
		t.Fatalf("expected error flag on entry")
	}

	got = fx.controller.Edit(entry, "1000")
	if got.Modified || got.Message != settings.MessageNone || !got.Valid {
		t.Fatalf("expected idle state, got %+v", got)
	}
	if entry.HasModified || entry.HasError {
		t.Fatalf("expected flags cleared, got %+v", *entry)
	}
}

func TestMachineSettingsSubmit_Success(t *testing.T) {
	b := bus.New(nil)
	t.Cleanup(b.Close)
	sub := b.Subscribe(connectors.TopicSubmit)
	fx := newMachineSettingsFixture(t, b)

	entry := settings.NewText("$110", "", "100")
	fx.store.Replace([]*settings.Entry{entry})
	fx.controller.Edit(entry, "  200 ")

	var result SubmitResult
	select {
	case result = <-fx.controller.Submit(context.Background(), entry):
	case <-time.After(time.Second):
		t.Fatalf("submit result timeout")
	}

	if result.Err != nil {
		t.Fatalf("unexpected submit error: %v", result.Err)
	}
	if result.Command != "$110=200" {
		t.Fatalf("unexpected command: %q", result.Command)
	}
	if got := fx.sender.Commands(); len(got) != 1 || got[0] != "$110=200" {
		t.Fatalf("unexpected commands: %v", got)
	}
	if entry.Initial != "200" || entry.Value != "200" {
		t.Fatalf("expected confirmed value, got %+v", *entry)
	}
	if result.Validation.Modified || !result.Validation.Idle() {
		t.Fatalf("expected idle validation after submit, got %+v", result.Validation)
	}

	select {
	case raw := <-sub:
		event, ok := raw.(connectors.SubmitEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", raw)
		}
		if event.Command != "$110" || event.Previous != "100" || event.Value != "200" || event.Outcome != connectors.SubmitApplied {
			t.Fatalf("unexpected submit event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("submit event was not published")
	}
}

func TestMachineSettingsSubmit_KeepsEditTypedWhileSending(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	fx.sender.hold = make(chan struct{})
	entry := settings.NewText("$110", "", "500")
	fx.store.Replace([]*settings.Entry{entry})

	fx.controller.Edit(entry, "600")
	results := fx.controller.Submit(context.Background(), entry)
	fx.controller.Edit(entry, "6000")
	close(fx.sender.hold)

	var result SubmitResult
	select {
	case result = <-results:
	case <-time.After(time.Second):
		t.Fatalf("submit result timeout")
	}
	if result.Err != nil || result.Command != "$110=600" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if entry.Value != "6000" || entry.Initial != "600" {
		t.Fatalf("expected newer edit to survive, got %+v", *entry)
	}
	if !result.Validation.Modified || !entry.HasModified {
		t.Fatalf("expected newer edit to stay modified, got %+v", result.Validation)
	}
}

func TestMachineSettingsSubmit_FailureReleasesReplySlot(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	entry := settings.NewText("$1", "", "25")
	fx.store.Replace([]*settings.Entry{entry})
	fx.controller.Edit(entry, "30")

	fx.sender.failWith(errors.New("write timeout"))
	if result := <-fx.controller.Submit(ctx, entry); result.Err == nil {
		t.Fatalf("expected submit error")
	}
	fx.sender.failWith(nil)

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.correlator.HandleLine("$0=10")
	fx.correlator.HandleLine("ok")

	waitForCondition(t, func() bool { return !fx.controller.State().Loading })
	if entries := fx.store.Entries(); len(entries) != 1 || entries[0].Command != "$0" {
		t.Fatalf("expected the query reply to be cached, got %d entries", len(entries))
	}
}

func TestMachineSettingsSubmit_FailureKeepsEntryAndFetch(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ctx := context.Background()
	entry := settings.NewText("$1", "", "25")
	fx.store.Replace([]*settings.Entry{entry})
	fx.controller.Edit(entry, "30")

	if !fx.controller.Refresh(ctx) {
		t.Fatalf("expected refresh to start")
	}
	fx.sender.failWith(errors.New("write timeout"))

	result := <-fx.controller.Submit(ctx, entry)
	if result.Err == nil {
		t.Fatalf("expected submit error")
	}
	if entry.Initial != "25" || entry.Value != "30" {
		t.Fatalf("failed submit changed the entry: %+v", *entry)
	}
	if !result.Validation.Modified {
		t.Fatalf("expected entry to stay modified, got %+v", result.Validation)
	}
	if !fx.correlator.Outstanding(grbl.CommandEeprom) {
		t.Fatalf("failed submit abandoned the settings query")
	}
	if !fx.controller.State().Loading {
		t.Fatalf("failed submit ended the settings query")
	}

	payloads := fx.notifier.Payloads()
	if len(payloads) != 1 || !strings.HasPrefix(payloads[0].Content, "Update failed: ") {
		t.Fatalf("unexpected notifications: %+v", payloads)
	}
}

func TestMachineSettingsSubmit_RejectsNonEditable(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)

	result := <-fx.controller.Submit(context.Background(), settings.NewComment("[HLP:$$]"))
	if !errors.Is(result.Err, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", result.Err)
	}

	result = <-fx.controller.Submit(context.Background(), settings.NewText(" ", "", "1"))
	if !errors.Is(result.Err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", result.Err)
	}
	if got := fx.sender.Commands(); len(got) != 0 {
		t.Fatalf("rejected submits must not send, got %v", got)
	}
}

func TestMachineSettingsAutoLoad_WaitsForReady(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ready := make(chan struct{})
	started := make(chan bool, 1)

	go func() {
		started <- fx.controller.AutoLoad(context.Background(), ready)
	}()

	waitForCondition(t, func() bool { return fx.controller.State().Loading })
	if got := fx.sender.Commands(); len(got) != 0 {
		t.Fatalf("autoload sent before the channel was ready: %v", got)
	}

	close(ready)
	if !<-started {
		t.Fatalf("expected autoload to start a query")
	}
	if got := fx.sender.Commands(); len(got) != 1 || got[0] != "$$" {
		t.Fatalf("unexpected commands: %v", got)
	}
}

func TestMachineSettingsAutoLoad_SkipsWhenCacheFilled(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ready := make(chan struct{})
	started := make(chan bool, 1)

	go func() {
		started <- fx.controller.AutoLoad(context.Background(), ready)
	}()
	waitForCondition(t, func() bool { return fx.controller.State().Loading })

	fx.store.Replace([]*settings.Entry{settings.NewText("$0", "", "10")})
	close(ready)

	if <-started {
		t.Fatalf("autoload must not fire once the cache is filled")
	}
	if fx.controller.State().Loading {
		t.Fatalf("expected loading to be reset")
	}
	if got := fx.sender.Commands(); len(got) != 0 {
		t.Fatalf("unexpected commands: %v", got)
	}
}

func TestMachineSettingsAutoLoad_CancelledBeforeReady(t *testing.T) {
	fx := newMachineSettingsFixture(t, nil)
	ready := make(chan struct{})
	started := make(chan bool, 1)

	go func() {
		started <- fx.controller.AutoLoad(context.Background(), ready)
	}()
	waitForCondition(t, func() bool { return fx.controller.State().Loading })

	fx.controller.Cancel()
	close(ready)

	if <-started {
		t.Fatalf("cancelled autoload must not fire")
	}
	if got := fx.sender.Commands(); len(got) != 0 {
		t.Fatalf("unexpected commands: %v", got)
	}
}
