package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/notification"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresSentLedger_SentWithin(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	ledger := NewPostgresSentLedger(db)

	ny, _ := time.LoadLocation("America/New_York")
	window := notification.LocalDayWindow(time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC), ny)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1", "", "daily-summary", "2024-01-15").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	sent, err := ledger.SentWithin(context.Background(), "s1", "", "daily-summary", window)
	if err != nil {
		t.Fatalf("SentWithin() error = %v", err)
	}
	if !sent {
		t.Fatal("SentWithin() = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSentLedger_Append(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	ledger := NewPostgresSentLedger(db)

	rec := &notification.SentRecord{
		ID:           "6f1c1c7e-8c7a-4d4e-9d1e-0c1f7a1b2c3d",
		SubscriberID: "s1",
		GroupID:      "g1",
		Category:     notification.CategoryGroup,
		SentAt:       time.Date(2024, 3, 4, 14, 30, 5, 0, time.UTC),
		LocalDay:     time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(`INSERT INTO sent_notifications .* ON CONFLICT DO NOTHING`).
		WithArgs(rec.ID, "s1", "g1", "group-notification", rec.SentAt, "2024-03-04").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := ledger.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	mock.ExpectExec(`INSERT INTO sent_notifications`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := ledger.Append(context.Background(), rec); !errors.Is(err, notification.ErrDuplicateSentRecord) {
		t.Fatalf("duplicate Append() error = %v, want ErrDuplicateSentRecord", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSentLedger_AppendDirectSendHasNullGroup(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	ledger := NewPostgresSentLedger(db)

	mock.ExpectExec(`INSERT INTO sent_notifications`).
		WithArgs(sqlmock.AnyArg(), "s1", nil, "promo", sqlmock.AnyArg(), "2024-03-04").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ledger.Append(context.Background(), &notification.SentRecord{
		ID: "id", SubscriberID: "s1", Category: "promo",
		SentAt: time.Now(), LocalDay: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestPostgresSentLedger_Unavailable(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	ledger := NewPostgresSentLedger(db)

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection refused"))
	_, err := ledger.SentWithin(context.Background(), "s1", "", "promo", notification.LocalDayWindow(time.Now(), time.UTC))
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("SentWithin() error = %v, want ErrStoreUnavailable", err)
	}
}
