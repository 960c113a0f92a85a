package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/machinecfg/internal/connectors"
)

// ChangeRepo stores the journal of settings updates sent to the machine.
type ChangeRepo struct {
	db *sql.DB
}

func NewChangeRepo(db *sql.DB) *ChangeRepo {
	return &ChangeRepo{db: db}
}

func (r *ChangeRepo) Insert(ctx context.Context, event connectors.SubmitEvent) error {
	var errText any
	if event.Err != "" {
		errText = event.Err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO setting_changes(command, previous_value, value, outcome, error, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.Command, event.Previous, event.Value, string(event.Outcome), errText, millis(event.At))
	if err != nil {
		return fmt.Errorf("insert setting change: %w", err)
	}

	return nil
}

// ListRecent returns up to limit changes, newest first.
func (r *ChangeRepo) ListRecent(ctx context.Context, limit int) ([]connectors.SubmitEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT command, previous_value, value, outcome, error, changed_at
		FROM setting_changes
		ORDER BY changed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list setting changes: %w", err)
	}
	defer rows.Close()

	var out []connectors.SubmitEvent
	for rows.Next() {
		var (
			event     connectors.SubmitEvent
			outcome   string
			errText   sql.NullString
			changedMs int64
		)
		if err := rows.Scan(&event.Command, &event.Previous, &event.Value, &outcome, &errText, &changedMs); err != nil {
			return nil, fmt.Errorf("scan setting change: %w", err)
		}
		event.Outcome = connectors.SubmitOutcome(outcome)
		event.Err = errText.String
		event.At = fromMillis(changedMs)
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting changes: %w", err)
	}

	return out, nil
}
