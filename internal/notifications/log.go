package notifications

import "log/slog"

// LogSender writes notifications to the application log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}

	return &LogSender{logger: logger}
}

func (s *LogSender) Send(payload Payload) {
	if payload.Level == LevelError {
		s.logger.Error("notification", "title", payload.Title, "content", payload.Content)

		return
	}
	s.logger.Info("notification", "title", payload.Title, "content", payload.Content)
}
