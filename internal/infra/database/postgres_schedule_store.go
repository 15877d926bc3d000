// internal/infra/database/postgres_schedule_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/infra/metrics"
)

type PostgresScheduleStore struct {
	db *sql.DB
}

var _ schedule.Store = (*PostgresScheduleStore)(nil)

func NewPostgresScheduleStore(db *sql.DB) *PostgresScheduleStore {
	return &PostgresScheduleStore{db: db}
}

// Upsert replaces the owner's schedule in a single statement, so readers see
// either the old or the new definition, never both or neither.
func (r *PostgresScheduleStore) Upsert(ctx context.Context, rec *schedule.Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("error encoding schedule payload: %w", err)
	}
	var dow sql.NullInt16
	if rec.Spec.Weekly() {
		dow = sql.NullInt16{Int16: int16(rec.Spec.DayOfWeek), Valid: true}
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `INSERT INTO notification_schedules (owner_kind, owner_id, minute, hour, day_of_week, timezone, payload, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT (owner_kind, owner_id) DO UPDATE
               SET minute = EXCLUDED.minute, hour = EXCLUDED.hour, day_of_week = EXCLUDED.day_of_week,
                   timezone = EXCLUDED.timezone, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	start := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		string(rec.Owner.Kind), rec.Owner.ID, rec.Spec.Minute, rec.Spec.Hour, dow, rec.Timezone, payload, updatedAt)
	metrics.ObserveStoreRequest("postgres", "schedule_upsert", start, err)
	if err != nil {
		return fmt.Errorf("error upserting schedule for %s: %w: %w", rec.Owner, domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Cancel deletes the owner's schedule; a missing row is not an error.
func (r *PostgresScheduleStore) Cancel(ctx context.Context, owner schedule.Owner) error {
	query := `DELETE FROM notification_schedules WHERE owner_kind = $1 AND owner_id = $2`
	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, string(owner.Kind), owner.ID)
	metrics.ObserveStoreRequest("postgres", "schedule_cancel", start, err)
	if err != nil {
		return fmt.Errorf("error cancelling schedule for %s: %w: %w", owner, domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresScheduleStore) All(ctx context.Context) ([]*schedule.Record, error) {
	query := `SELECT owner_kind, owner_id, minute, hour, day_of_week, timezone, payload, updated_at
               FROM notification_schedules`
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query)
	metrics.ObserveStoreRequest("postgres", "schedule_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("error listing schedules: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	records := make([]*schedule.Record, 0)
	for rows.Next() {
		var (
			rec     schedule.Record
			kind    string
			dow     sql.NullInt16
			payload []byte
		)
		if err := rows.Scan(&kind, &rec.Owner.ID, &rec.Spec.Minute, &rec.Spec.Hour, &dow, &rec.Timezone, &payload, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning schedule row: %w: %w", domain.ErrStoreUnavailable, err)
		}
		rec.Owner.Kind = schedule.OwnerKind(kind)
		rec.Spec.DayOfWeek = schedule.AnyDayOfWeek
		if dow.Valid {
			rec.Spec.DayOfWeek = int(dow.Int16)
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("error decoding payload of schedule %s: %w", rec.Owner, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}
