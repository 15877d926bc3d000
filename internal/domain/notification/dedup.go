// internal/domain/notification/dedup.go
package notification

import (
	"time"
)

// Category tags a sent notification. Subscriber sends use the subscriber's
// email type; group sends always use CategoryGroup.
type Category string

// CategoryGroup is the category of every group-originated send.
const CategoryGroup Category = "group-notification"

// SentRecord is one entry of the dedup ledger: "a notification of Category was
// sent to SubscriberID (for GroupID) at SentAt". Never mutated or deleted here.
type SentRecord struct {
	ID           string
	SubscriberID string
	GroupID      string // empty for direct subscriber sends
	Category     Category
	SentAt       time.Time // UTC
	LocalDay     time.Time // midnight of the recipient's calendar day, UTC-normalised date
}

// DayWindow is the half-open interval [Start, End) of one local calendar day.
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Date returns the calendar date of the window as a UTC midnight, suitable for
// a DATE column.
func (w DayWindow) Date() time.Time {
	return time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalDayWindow returns the calendar day containing instant in loc.
// Days are computed with AddDate so DST transitions yield 23h or 25h windows.
func LocalDayWindow(instant time.Time, loc *time.Location) DayWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return DayWindow{Start: start, End: start.AddDate(0, 0, 1)}
}
