package notification

import (
	"time"

	"notification_scheduler/internal/domain/schedule"
)

// Firing is one concrete due occurrence of a schedule.
type Firing struct {
	Owner       schedule.Owner
	Payload     schedule.Payload
	ScheduledAt time.Time // the matched minute, UTC
}

// LeaseKey is the key under which the firing's execution lease is taken.
func (f Firing) LeaseKey() string {
	return "notification:" + f.Owner.String() + ":" + f.ScheduledAt.UTC().Format("200601021504")
}

// GroupTarget reports whether the firing targets a group.
func (f Firing) GroupTarget() bool {
	return f.Payload.GroupID != ""
}
