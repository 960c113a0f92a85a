package notifications

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"
)

// DesktopSender shows notifications through the OS notification daemon.
// Errors use an alert so they stay visible when the window is hidden.
type DesktopSender struct {
	logger *slog.Logger
	notify func(title, message string, icon any) error
	alert  func(title, message string, icon any) error
}

func NewDesktopSender(appName string, logger *slog.Logger) *DesktopSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications.desktop")
	}
	if name := strings.TrimSpace(appName); name != "" {
		beeep.AppName = name
	}

	return &DesktopSender{
		logger: logger,
		notify: beeep.Notify,
		alert:  beeep.Alert,
	}
}

func (s *DesktopSender) Send(payload Payload) {
	title := strings.TrimSpace(payload.Title)
	content := strings.TrimSpace(payload.Content)
	if title == "" && content == "" {
		return
	}

	send := s.notify
	if payload.Level == LevelError {
		send = s.alert
	}
	if err := send(title, content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "level", payload.Level, "error", err)
	}
}
