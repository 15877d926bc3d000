// internal/app/cadence.go
package app

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/domain/subscriber"
)

// ErrInvalidCadence is the parent of every cadence validation error.
var ErrInvalidCadence = fmt.Errorf("invalid cadence")

var (
	ErrInvalidTimeFormat = fmt.Errorf("%w: preferred time must be HH:mm (24h)", ErrInvalidCadence)
	ErrMissingDayOfWeek  = fmt.Errorf("%w: weekly frequency requires a day of week", ErrInvalidCadence)
	ErrInvalidDayOfWeek  = fmt.Errorf("%w: unknown day of week", ErrInvalidCadence)
	ErrInvalidFrequency  = fmt.Errorf("%w: unknown frequency", ErrInvalidCadence)
	ErrInvalidTimezone   = fmt.Errorf("%w: unknown timezone", ErrInvalidCadence)
)

var preferredTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

var weekdays = map[subscriber.DayOfWeek]int{
	subscriber.Sunday:    0,
	subscriber.Monday:    1,
	subscriber.Tuesday:   2,
	subscriber.Wednesday: 3,
	subscriber.Thursday:  4,
	subscriber.Friday:    5,
	subscriber.Saturday:  6,
}

// CompileCadence turns a human-chosen cadence into a RecurrenceSpec.
// dayOfWeek is ignored for daily frequency. It never reads the clock.
func CompileCadence(frequency subscriber.Frequency, preferredTime string, dayOfWeek *subscriber.DayOfWeek) (schedule.RecurrenceSpec, error) {
	hour, minute, err := parsePreferredTime(preferredTime)
	if err != nil {
		return schedule.RecurrenceSpec{}, err
	}

	switch frequency {
	case subscriber.FrequencyDaily:
		return schedule.RecurrenceSpec{Minute: minute, Hour: hour, DayOfWeek: schedule.AnyDayOfWeek}, nil
	case subscriber.FrequencyWeekly:
		if dayOfWeek == nil || *dayOfWeek == "" {
			return schedule.RecurrenceSpec{}, ErrMissingDayOfWeek
		}
		dow, ok := weekdays[*dayOfWeek]
		if !ok {
			return schedule.RecurrenceSpec{}, fmt.Errorf("%w: %q", ErrInvalidDayOfWeek, *dayOfWeek)
		}
		return schedule.RecurrenceSpec{Minute: minute, Hour: hour, DayOfWeek: dow}, nil
	default:
		return schedule.RecurrenceSpec{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}
}

// CompileSchedule compiles the cadence and resolves its timezone.
func CompileSchedule(c subscriber.Cadence) (schedule.RecurrenceSpec, *time.Location, error) {
	spec, err := CompileCadence(c.Frequency, c.PreferredTime, c.DayOfWeek)
	if err != nil {
		return schedule.RecurrenceSpec{}, nil, err
	}
	if c.Timezone == "" {
		return schedule.RecurrenceSpec{}, nil, fmt.Errorf("%w: empty", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return schedule.RecurrenceSpec{}, nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}
	return spec, loc, nil
}

func parsePreferredTime(raw string) (hour, minute int, err error) {
	m := preferredTimePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	// The pattern bounds both fields, Atoi cannot fail here.
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}
