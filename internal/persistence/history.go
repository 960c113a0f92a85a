package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var errNoDB = errors.New("database is not initialized")

// ClearHistory removes every recorded settings change.
func ClearHistory(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errNoDB
	}

	//goland:noinspection SqlWithoutWhere
	if _, err := db.ExecContext(ctx, `DELETE FROM setting_changes;`); err != nil {
		return fmt.Errorf("clear settings history: %w", err)
	}

	return nil
}

// PruneHistory keeps the newest keep changes and deletes the rest. It returns
// how many rows were removed.
func PruneHistory(ctx context.Context, db *sql.DB, keep int) (int64, error) {
	if db == nil {
		return 0, errNoDB
	}
	if keep < 0 {
		keep = 0
	}

	res, err := db.ExecContext(ctx, `
		DELETE FROM setting_changes
		WHERE id NOT IN (
			SELECT id FROM setting_changes
			ORDER BY changed_at DESC, id DESC
			LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune settings history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune settings history: %w", err)
	}

	return removed, nil
}

// Timestamps are stored as unix milliseconds; zero means unknown.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(v)
}
