package subscriber

// Frequency is how often a subscriber or group is notified.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// DayOfWeek is the symbolic weekday used by weekly cadences.
type DayOfWeek string

const (
	Sunday    DayOfWeek = "Sunday"
	Monday    DayOfWeek = "Monday"
	Tuesday   DayOfWeek = "Tuesday"
	Wednesday DayOfWeek = "Wednesday"
	Thursday  DayOfWeek = "Thursday"
	Friday    DayOfWeek = "Friday"
	Saturday  DayOfWeek = "Saturday"
)

// EmailType is the notification category a subscriber chose.
type EmailType string

const (
	EmailTypeDailySummary   EmailType = "daily-summary"
	EmailTypeWeeklyReport   EmailType = "weekly-report"
	EmailTypeActivityAlert  EmailType = "activity-alert"
	EmailTypePromo          EmailType = "promo"
	EmailTypeSystemReminder EmailType = "system-reminder"
)

// Cadence is the (frequency, time-of-day, optional weekday) triple together
// with the IANA timezone it is expressed in.
type Cadence struct {
	Frequency     Frequency
	PreferredTime string     // "HH:mm", 24h, local to Timezone
	DayOfWeek     *DayOfWeek // only meaningful when Frequency is weekly
	Timezone      string
}

// Subscriber is an individual notification recipient.
// Records are owned by the external CRUD surface; this service only reads them.
type Subscriber struct {
	ID            string
	Email         string
	Timezone      string
	PreferredTime string
	EmailType     EmailType
	Frequency     Frequency
	DayOfWeek     *DayOfWeek
}

// Cadence returns the subscriber's schedule fields.
func (s *Subscriber) Cadence() Cadence {
	return Cadence{
		Frequency:     s.Frequency,
		PreferredTime: s.PreferredTime,
		DayOfWeek:     s.DayOfWeek,
		Timezone:      s.Timezone,
	}
}

// Group is a named set of subscribers notified together.
type Group struct {
	ID            string
	Name          string
	Members       []string // subscriber IDs, set semantics, order preserved
	Timezone      string
	PreferredTime string
	EmailType     EmailType
	Frequency     Frequency
	DayOfWeek     *DayOfWeek
}

// Cadence returns the group's schedule fields.
func (g *Group) Cadence() Cadence {
	return Cadence{
		Frequency:     g.Frequency,
		PreferredTime: g.PreferredTime,
		DayOfWeek:     g.DayOfWeek,
		Timezone:      g.Timezone,
	}
}

// MemberIDs returns the members with duplicates removed, keeping first-seen order.
func (g *Group) MemberIDs() []string {
	seen := make(map[string]struct{}, len(g.Members))
	ids := make([]string, 0, len(g.Members))
	for _, id := range g.Members {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
