package device

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
)

type fakeTransport struct {
	mu       sync.Mutex
	written  []string
	writeErr error
	incoming chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan string, 16)}
}

func (f *fakeTransport) Name() string                    { return "fake" }
func (f *fakeTransport) Connect(_ context.Context) error { return nil }
func (f *fakeTransport) Close() error                    { return nil }
func (f *fakeTransport) StatusTarget() string            { return "fake-target" }

func (f *fakeTransport) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-f.incoming:
		return line, nil
	}
}

func (f *fakeTransport) WriteLine(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, line)

	return nil
}

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.written...)
}

func newTestService(t *testing.T, tr *fakeTransport) (*Service, *bus.PubSubBus, context.Context) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	t.Cleanup(messageBus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewService(logger, messageBus, tr), messageBus, ctx
}

func TestServiceSendCommand_WritesToTransport(t *testing.T) {
	tr := newFakeTransport()
	service, messageBus, ctx := newTestService(t, tr)
	rawOut := messageBus.Subscribe(connectors.TopicRawLineOut)
	service.Start(ctx)

	result := waitResult(t, service.SendCommand("  $110=500 "))
	if result.Err != nil {
		t.Fatalf("send command: %v", result.Err)
	}
	if result.Command != "$110=500" {
		t.Fatalf("unexpected command in result: %q", result.Command)
	}
	if got := tr.Written(); len(got) != 1 || got[0] != "$110=500" {
		t.Fatalf("unexpected written commands: %v", got)
	}

	select {
	case raw := <-rawOut:
		frame, ok := raw.(connectors.RawLine)
		if !ok || frame.Text != "$110=500" {
			t.Fatalf("unexpected raw out event: %#v", raw)
		}
	case <-time.After(time.Second):
		t.Fatalf("raw out event was not published")
	}
}

func TestServiceSendCommand_ReportsTransportFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("port closed")
	service, _, ctx := newTestService(t, tr)
	service.Start(ctx)

	result := waitResult(t, service.SendCommand("$$"))
	if result.Err == nil || !strings.Contains(result.Err.Error(), "port closed") {
		t.Fatalf("expected transport error, got %v", result.Err)
	}
}

func TestServiceSendCommand_RejectsInvalidCommands(t *testing.T) {
	tr := newFakeTransport()
	service, _, _ := newTestService(t, tr)

	if result := waitResult(t, service.SendCommand("   ")); !errors.Is(result.Err, ErrEmptyCommand) {
		t.Fatalf("expected empty command error, got %v", result.Err)
	}
	if result := waitResult(t, service.SendCommand("$"+strings.Repeat("1", maxCommandLen))); !errors.Is(result.Err, ErrCommandTooLong) {
		t.Fatalf("expected too long error, got %v", result.Err)
	}
	if result := waitResult(t, service.SendCommand("$$\n$0=1")); result.Err == nil {
		t.Fatalf("expected error for multi-line command")
	}
	if got := tr.Written(); len(got) != 0 {
		t.Fatalf("invalid commands must not reach the transport: %v", got)
	}
}

func TestServiceReader_PublishesLinesAndStatus(t *testing.T) {
	tr := newFakeTransport()
	service, messageBus, ctx := newTestService(t, tr)
	lines := messageBus.Subscribe(connectors.TopicLineIn)
	statuses := messageBus.Subscribe(connectors.TopicConnStatus)
	service.Start(ctx)

	waitConnected(t, statuses)
	tr.incoming <- "$0=10"

	select {
	case raw := <-lines:
		line, ok := raw.(connectors.Line)
		if !ok || line.Text != "$0=10" {
			t.Fatalf("unexpected line event: %#v", raw)
		}
		if line.ReceivedAt.IsZero() {
			t.Fatalf("expected receive timestamp")
		}
	case <-time.After(time.Second):
		t.Fatalf("line was not published")
	}
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()

	if got := nextBackoff(time.Second); got != 2*time.Second {
		t.Fatalf("unexpected backoff: %s", got)
	}
	if got := nextBackoff(10 * time.Second); got != maxBackoff {
		t.Fatalf("expected backoff cap, got %s", got)
	}
}

func waitConnected(t *testing.T, sub bus.Subscription) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case raw := <-sub:
			status, ok := raw.(connectors.ConnectionStatus)
			if !ok {
				continue
			}
			if status.State == connectors.ConnectionStateConnected {
				if status.Target != "fake-target" {
					t.Fatalf("unexpected status target: %q", status.Target)
				}

				return
			}
		case <-deadline:
			t.Fatalf("connected status was not published")
		}
	}
}

func waitResult(t *testing.T, ch <-chan SendResult) SendResult {
	t.Helper()
	select {
	case result := <-ch:
		return result
	case <-time.After(time.Second):
		t.Fatalf("send result timeout")
	}

	return SendResult{}
}
