package db

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Cleanup deletes snapshots and history older than retention. Timestamps
// are RFC3339 UTC text, so a string comparison orders them.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration, now time.Time) error {
	if retention < time.Hour {
		retention = time.Hour
	}
	cutoff := formatTime(now.Add(-retention))

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	queries := []struct {
		name  string
		query string
	}{
		{"board_departures", `DELETE FROM board_departures WHERE snapshot_id IN (
			SELECT snapshot_id FROM board_snapshots WHERE polled_at_utc < ?)`},
		{"board_snapshots", "DELETE FROM board_snapshots WHERE polled_at_utc < ?"},
		{"vehicle_history", "DELETE FROM vehicle_history WHERE polled_at_utc < ?"},
		{"vehicle_current", "DELETE FROM vehicle_current WHERE polled_at_utc < ?"},
	}

	totalDeleted := 0
	for _, q := range queries {
		result, err := db.conn.ExecContext(ctx, db.rebind(q.query), cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", q.name, err)
		}
		rows, _ := result.RowsAffected()
		totalDeleted += int(rows)
	}

	if totalDeleted > 0 {
		log.Printf("Cleanup: deleted %d records older than %v", totalDeleted, retention)
	}
	return nil
}
