// internal/domain/schedule/record.go
package schedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// OwnerKind tells whether a schedule belongs to a subscriber or a group.
type OwnerKind string

const (
	OwnerSubscriber OwnerKind = "subscriber"
	OwnerGroup      OwnerKind = "group"
)

// Owner identifies the entity a schedule belongs to. Exactly one kind per owner.
type Owner struct {
	Kind OwnerKind
	ID   string
}

func (o Owner) String() string {
	return string(o.Kind) + ":" + o.ID
}

// AnyDayOfWeek marks a daily recurrence.
const AnyDayOfWeek = -1

// RecurrenceSpec is a compiled cadence: fires at Hour:Minute, on DayOfWeek
// (Sunday=0 … Saturday=6) or every day when DayOfWeek is AnyDayOfWeek.
type RecurrenceSpec struct {
	Minute    int
	Hour      int
	DayOfWeek int
}

// Weekly reports whether the recurrence is restricted to one weekday.
func (r RecurrenceSpec) Weekly() bool {
	return r.DayOfWeek != AnyDayOfWeek
}

// Expression renders the recurrence as a standard 5-field cron expression.
func (r RecurrenceSpec) Expression() string {
	dow := "*"
	if r.Weekly() {
		dow = strconv.Itoa(r.DayOfWeek)
	}
	return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, dow)
}

// Schedule parses the recurrence into a cron.Schedule bound to loc.
func (r RecurrenceSpec) Schedule(loc *time.Location) (cron.Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	return cron.ParseStandard(fmt.Sprintf("CRON_TZ=%s %s", loc.String(), r.Expression()))
}

// Due reports whether the minute containing instant, read as wall-clock time
// in loc, matches the recurrence. Matching is exact at minute granularity.
func (r RecurrenceSpec) Due(instant time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	local := instant.In(loc)
	if local.Hour() != r.Hour || local.Minute() != r.Minute {
		return false
	}
	return !r.Weekly() || int(local.Weekday()) == r.DayOfWeek
}

// Payload identifies the owner for execution. Exactly one field is set.
type Payload struct {
	SubscriberID string `json:"subscriberId,omitempty"`
	GroupID      string `json:"groupId,omitempty"`
}

// PayloadFor builds the execution payload for owner.
func PayloadFor(owner Owner) Payload {
	if owner.Kind == OwnerGroup {
		return Payload{GroupID: owner.ID}
	}
	return Payload{SubscriberID: owner.ID}
}

// Record is the single live schedule of an owner.
type Record struct {
	Owner     Owner
	Spec      RecurrenceSpec
	Timezone  string
	Payload   Payload
	UpdatedAt time.Time
}

// Location resolves the record's timezone.
func (r *Record) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}
