package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/transport"
)

const (
	maxCommandLen = 256
	readTimeout   = 30 * time.Second
	writeTimeout  = 8 * time.Second
	maxBackoff    = 15 * time.Second
)

var (
	ErrEmptyCommand   = errors.New("command is empty")
	ErrCommandTooLong = fmt.Errorf("command exceeds %d bytes", maxCommandLen)
)

// SendResult reports whether a command was written to the transport.
// It says nothing about how the controller answered.
type SendResult struct {
	Command string
	Err     error
}

type sendRequest struct {
	command string
	result  chan SendResult
}

// Service owns the transport: it keeps it connected, publishes inbound lines
// on the bus and serializes outbound commands.
type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	bus       bus.MessageBus
	outbox    chan sendRequest
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport) *Service {
	if logger == nil {
		logger = slog.Default().With("component", "device")
	}

	return &Service{
		logger:    logger,
		transport: tr,
		bus:       b,
		outbox:    make(chan sendRequest, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.runOutbox(ctx)
	go s.runConnector(ctx)
}

// SendCommand queues one command line. The returned channel yields exactly one result.
func (s *Service) SendCommand(command string) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	command = strings.TrimSpace(command)
	if err := validateCommand(command); err != nil {
		resCh <- SendResult{Command: command, Err: err}
		close(resCh)

		return resCh
	}

	s.outbox <- sendRequest{command: command, result: resCh}

	return resCh
}

func validateCommand(command string) error {
	if command == "" {
		return ErrEmptyCommand
	}
	if len(command) > maxCommandLen {
		return ErrCommandTooLong
	}
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("command contains a line break: %q", command)
	}

	return nil
}

func (s *Service) runConnector(ctx context.Context) {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(connectors.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			s.publishConnStatus(connectors.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)

			continue
		}

		backoff = time.Second
		s.publishConnStatus(connectors.ConnectionStateConnected, nil)
		err := s.runReader(ctx)
		_ = s.transport.Close()
		if ctx.Err() != nil {
			s.publishConnStatus(connectors.ConnectionStateDisconnected, nil)

			return
		}
		s.logger.Warn("transport reader stopped", "error", err)
		s.publishConnStatus(connectors.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		text, err := s.transport.ReadLine(readCtx)
		cancel()
		if err != nil {
			if isIdleTimeout(err) && ctx.Err() == nil {
				// An idle controller is not an error.
				continue
			}

			return err
		}

		s.bus.Publish(connectors.TopicRawLineIn, connectors.RawLine{Text: text, Len: len(text)})
		s.bus.Publish(connectors.TopicLineIn, connectors.Line{Text: text, ReceivedAt: time.Now()})
	}
}

func (s *Service) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.outbox:
			req.result <- s.handleSend(ctx, req)
			close(req.result)
		}
	}
}

func (s *Service) handleSend(ctx context.Context, req sendRequest) SendResult {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	err := s.transport.WriteLine(writeCtx, req.command)
	cancel()
	if err != nil {
		s.logger.Warn("send command failed", "command", req.command, "error", err)

		return SendResult{Command: req.command, Err: fmt.Errorf("send command %q: %w", req.command, err)}
	}

	s.logger.Debug("sent command", "command", req.command)
	s.bus.Publish(connectors.TopicRawLineOut, connectors.RawLine{Text: req.command, Len: len(req.command)})

	return SendResult{Command: req.command}
}

func (s *Service) publishConnStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if resolver, ok := s.transport.(transport.Targeted); ok {
		status.Target = resolver.StatusTarget()
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(connectors.TopicConnStatus, status)
}

func isIdleTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func nextBackoff(current time.Duration) time.Duration {
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}

	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
