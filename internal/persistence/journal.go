package persistence

import (
	"context"
	"log/slog"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
)

// StartChangeJournal records every submit event published on the bus.
func StartChangeJournal(ctx context.Context, b bus.MessageBus, writer *WriterQueue, repo *ChangeRepo, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default().With("component", "persistence")
	}

	bus.Listen(ctx, b, connectors.TopicSubmit, func(event connectors.SubmitEvent) bool {
		logger.Debug("journal setting change", "command", event.Command, "outcome", event.Outcome)
		writer.Enqueue("insert_setting_change", func(ctx context.Context) error {
			return repo.Insert(ctx, event)
		})

		return true
	})
}
