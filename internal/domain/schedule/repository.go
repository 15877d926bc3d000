package schedule

import (
	"context"
	"time"
)

// Store is the durable registry of live schedules, one per owner.
type Store interface {
	// Upsert atomically replaces any existing record for rec.Owner.
	Upsert(ctx context.Context, rec *Record) error
	// Cancel removes the owner's record. Missing records are not an error.
	Cancel(ctx context.Context, owner Owner) error
	// All returns a snapshot of every live record.
	All(ctx context.Context) ([]*Record, error)
}

// LeaseStore hands out short-lived exclusive claims on a key.
type LeaseStore interface {
	// Acquire returns true if the caller now holds key for ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
