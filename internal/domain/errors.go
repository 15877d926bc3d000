// internal/domain/errors.go
package domain

import "errors"

// ErrStoreUnavailable marks a transient failure of a backing store (schedule
// store, dedup ledger, record store or lease store). Callers owning a retry
// loop retry with backoff when errors.Is(err, ErrStoreUnavailable).
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrOwnerNotFound is returned when a subscriber or group vanished between
// scheduling and execution. It is benign.
var ErrOwnerNotFound = errors.New("schedule owner not found")
