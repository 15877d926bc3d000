// internal/infra/database/postgres_sent_ledger.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/notification"
	"notification_scheduler/internal/infra/metrics"
)

const localDayLayout = "2006-01-02"

type PostgresSentLedger struct {
	db *sql.DB
}

var _ notification.Ledger = (*PostgresSentLedger)(nil)

func NewPostgresSentLedger(db *sql.DB) *PostgresSentLedger {
	return &PostgresSentLedger{db: db}
}

func (r *PostgresSentLedger) SentWithin(ctx context.Context, subscriberID, groupID string, category notification.Category, window notification.DayWindow) (bool, error) {
	query := `SELECT EXISTS (
                 SELECT 1 FROM sent_notifications
                 WHERE subscriber_id = $1 AND COALESCE(group_id, '') = $2 AND category = $3 AND local_day = $4
               )`
	var exists bool
	start := time.Now()
	err := r.db.QueryRowContext(ctx, query, subscriberID, groupID, string(category), window.Date().Format(localDayLayout)).Scan(&exists)
	metrics.ObserveStoreRequest("postgres", "ledger_check", start, err)
	if err != nil {
		return false, fmt.Errorf("error checking sent notifications: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return exists, nil
}

// Append inserts rec. The unique index on (subscriber, group, category, day)
// turns a concurrent duplicate into ErrDuplicateSentRecord.
func (r *PostgresSentLedger) Append(ctx context.Context, rec *notification.SentRecord) error {
	var groupID sql.NullString
	if rec.GroupID != "" {
		groupID = sql.NullString{String: rec.GroupID, Valid: true}
	}
	query := `INSERT INTO sent_notifications (id, subscriber_id, group_id, category, sent_at, local_day)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT DO NOTHING`
	start := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SubscriberID, groupID, string(rec.Category), rec.SentAt.UTC(), rec.LocalDay.Format(localDayLayout))
	metrics.ObserveStoreRequest("postgres", "ledger_append", start, err)
	if err != nil {
		return fmt.Errorf("error appending sent notification: %w: %w", domain.ErrStoreUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if affected == 0 {
		return notification.ErrDuplicateSentRecord
	}
	return nil
}
