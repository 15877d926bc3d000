package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/schedule"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresScheduleStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewPostgresScheduleStore(db)

	updatedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	owner := schedule.Owner{Kind: schedule.OwnerGroup, ID: "g1"}
	mock.ExpectExec(`INSERT INTO notification_schedules .* ON CONFLICT \(owner_kind, owner_id\) DO UPDATE`).
		WithArgs("group", "g1", 30, 14, int64(1), "UTC", []byte(`{"groupId":"g1"}`), updatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Upsert(context.Background(), &schedule.Record{
		Owner:     owner,
		Spec:      schedule.RecurrenceSpec{Minute: 30, Hour: 14, DayOfWeek: 1},
		Timezone:  "UTC",
		Payload:   schedule.PayloadFor(owner),
		UpdatedAt: updatedAt,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresScheduleStore_UpsertDailyStoresNullDay(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := NewPostgresScheduleStore(db)

	owner := schedule.Owner{Kind: schedule.OwnerSubscriber, ID: "s1"}
	mock.ExpectExec(`INSERT INTO notification_schedules`).
		WithArgs("subscriber", "s1", 0, 9, nil, "America/New_York", []byte(`{"subscriberId":"s1"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Upsert(context.Background(), &schedule.Record{
		Owner:    owner,
		Spec:     schedule.RecurrenceSpec{Minute: 0, Hour: 9, DayOfWeek: schedule.AnyDayOfWeek},
		Timezone: "America/New_York",
		Payload:  schedule.PayloadFor(owner),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresScheduleStore_Cancel(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := NewPostgresScheduleStore(db)

	mock.ExpectExec(`DELETE FROM notification_schedules WHERE owner_kind = \$1 AND owner_id = \$2`).
		WithArgs("subscriber", "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Cancel(context.Background(), schedule.Owner{Kind: schedule.OwnerSubscriber, ID: "s1"}); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresScheduleStore_All(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := NewPostgresScheduleStore(db)

	updatedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"owner_kind", "owner_id", "minute", "hour", "day_of_week", "timezone", "payload", "updated_at"}).
		AddRow("subscriber", "s1", 0, 9, nil, "America/New_York", []byte(`{"subscriberId":"s1"}`), updatedAt).
		AddRow("group", "g1", 30, 14, 1, "UTC", []byte(`{"groupId":"g1"}`), updatedAt)
	mock.ExpectQuery(`SELECT owner_kind, owner_id, minute, hour, day_of_week, timezone, payload, updated_at`).WillReturnRows(rows)

	recs, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("All() returned %d records, want 2", len(recs))
	}
	if recs[0].Spec.Weekly() || recs[0].Payload.SubscriberID != "s1" || recs[0].Timezone != "America/New_York" {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Spec.DayOfWeek != 1 || recs[1].Owner.Kind != schedule.OwnerGroup || recs[1].Payload.GroupID != "g1" {
		t.Errorf("second record = %+v", recs[1])
	}
}

func TestPostgresScheduleStore_Unavailable(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	store := NewPostgresScheduleStore(db)

	mock.ExpectQuery(`SELECT owner_kind`).WillReturnError(driver.ErrBadConn)
	if _, err := store.All(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("All() error = %v, want ErrStoreUnavailable", err)
	}
}
