// internal/infra/database/postgres_record_store.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/subscriber"
	"notification_scheduler/internal/infra/metrics"

	"github.com/lib/pq" // For pq.Array
)

// PostgresRecordStore reads the subscriber and group tables maintained by the
// CRUD service.
type PostgresRecordStore struct {
	db *sql.DB
}

var _ subscriber.Repository = (*PostgresRecordStore)(nil)

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

const subscriberColumns = `id, email, timezone, preferred_time, email_type, frequency, day_of_week`
const groupColumns = `id, name, member_ids, timezone, preferred_time, email_type, frequency, day_of_week`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*subscriber.Subscriber, error) {
	var (
		s         subscriber.Subscriber
		emailType string
		frequency string
		dow       sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Email, &s.Timezone, &s.PreferredTime, &emailType, &frequency, &dow); err != nil {
		return nil, err
	}
	s.EmailType = subscriber.EmailType(emailType)
	s.Frequency = subscriber.Frequency(frequency)
	if dow.Valid && dow.String != "" {
		d := subscriber.DayOfWeek(dow.String)
		s.DayOfWeek = &d
	}
	return &s, nil
}

func scanGroup(row rowScanner) (*subscriber.Group, error) {
	var (
		g         subscriber.Group
		emailType string
		frequency string
		dow       sql.NullString
	)
	if err := row.Scan(&g.ID, &g.Name, pq.Array(&g.Members), &g.Timezone, &g.PreferredTime, &emailType, &frequency, &dow); err != nil {
		return nil, err
	}
	g.EmailType = subscriber.EmailType(emailType)
	g.Frequency = subscriber.Frequency(frequency)
	if dow.Valid && dow.String != "" {
		d := subscriber.DayOfWeek(dow.String)
		g.DayOfWeek = &d
	}
	return &g, nil
}

func (r *PostgresRecordStore) FindSubscriber(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE id = $1`
	start := time.Now()
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, query, id))
	metrics.ObserveStoreRequest("postgres", "subscriber_get", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscriber %s: %w", id, domain.ErrOwnerNotFound)
		}
		return nil, fmt.Errorf("error getting subscriber by ID: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return s, nil
}

func (r *PostgresRecordStore) FindSubscribers(ctx context.Context, ids []string) ([]*subscriber.Subscriber, error) {
	if len(ids) == 0 {
		return []*subscriber.Subscriber{}, nil
	}
	// array_position keeps the members' order.
	query := `SELECT ` + subscriberColumns + ` FROM subscribers
               WHERE id = ANY($1::text[]) ORDER BY array_position($1::text[], id)`
	return r.listSubscribers(ctx, "subscriber_list_by_ids", query, pq.Array(ids))
}

func (r *PostgresRecordStore) ListSubscribers(ctx context.Context) ([]*subscriber.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers ORDER BY id`
	return r.listSubscribers(ctx, "subscriber_list", query)
}

func (r *PostgresRecordStore) listSubscribers(ctx context.Context, operation, query string, args ...any) ([]*subscriber.Subscriber, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	metrics.ObserveStoreRequest("postgres", operation, start, err)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribers: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	subs := make([]*subscriber.Subscriber, 0)
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning subscriber: %w: %w", domain.ErrStoreUnavailable, err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return subs, nil
}

func (r *PostgresRecordStore) FindGroup(ctx context.Context, id string) (*subscriber.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM subscriber_groups WHERE id = $1`
	start := time.Now()
	g, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	metrics.ObserveStoreRequest("postgres", "group_get", start, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %s: %w", id, domain.ErrOwnerNotFound)
		}
		return nil, fmt.Errorf("error getting group by ID: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return g, nil
}

func (r *PostgresRecordStore) ListGroups(ctx context.Context) ([]*subscriber.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM subscriber_groups ORDER BY id`
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query)
	metrics.ObserveStoreRequest("postgres", "group_list", start, err)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	groups := make([]*subscriber.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning group: %w: %w", domain.ErrStoreUnavailable, err)
		}
		groups = append(groups, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return groups, nil
}
