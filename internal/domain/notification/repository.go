// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
)

// ErrDuplicateSentRecord is returned by Append when the recipient already has a
// record for the same group, category and local day.
var ErrDuplicateSentRecord = errors.New("notification already recorded for this day")

// Ledger is the append-only record of sent notifications used to enforce
// at most one notification per recipient, category and local day.
type Ledger interface {
	// SentWithin reports whether a record for (subscriberID, groupID, category)
	// exists for the local day described by window. groupID is empty for
	// direct sends.
	SentWithin(ctx context.Context, subscriberID, groupID string, category Category, window DayWindow) (bool, error)
	// Append stores rec. A conflicting record for the same day is reported
	// as ErrDuplicateSentRecord.
	Append(ctx context.Context, rec *SentRecord) error
}
