package notification

import (
	"testing"
	"time"

	"notification_scheduler/internal/domain/schedule"
)

func TestLocalDayWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	w := LocalDayWindow(time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC), ny)
	if want := time.Date(2024, 1, 15, 5, 0, 0, 0, time.UTC); !w.Start.Equal(want) {
		t.Errorf("Start = %s, want %s", w.Start.UTC(), want)
	}
	if want := time.Date(2024, 1, 16, 5, 0, 0, 0, time.UTC); !w.End.Equal(want) {
		t.Errorf("End = %s, want %s", w.End.UTC(), want)
	}
	if got := w.Date(); !got.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date() = %s", got)
	}

	// 02:00 UTC on the 16th is still the 15th in New York.
	late := LocalDayWindow(time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC), ny)
	if !late.Start.Equal(w.Start) {
		t.Errorf("late instant window start = %s, want %s", late.Start, w.Start)
	}
}

func TestLocalDayWindow_DST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	spring := LocalDayWindow(time.Date(2024, 3, 10, 12, 0, 0, 0, ny), ny)
	if d := spring.End.Sub(spring.Start); d != 23*time.Hour {
		t.Errorf("spring-forward day length = %s, want 23h", d)
	}
	fall := LocalDayWindow(time.Date(2024, 11, 3, 12, 0, 0, 0, ny), ny)
	if d := fall.End.Sub(fall.Start); d != 25*time.Hour {
		t.Errorf("fall-back day length = %s, want 25h", d)
	}
}

func TestDayWindow_Contains(t *testing.T) {
	w := LocalDayWindow(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.UTC)
	if !w.Contains(w.Start) {
		t.Error("window must contain its start")
	}
	if w.Contains(w.End) {
		t.Error("window must not contain its end")
	}
}

func TestFiring_LeaseKey(t *testing.T) {
	f := Firing{
		Owner:       schedule.Owner{Kind: schedule.OwnerGroup, ID: "g1"},
		Payload:     schedule.Payload{GroupID: "g1"},
		ScheduledAt: time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC),
	}
	if got, want := f.LeaseKey(), "notification:group:g1:202403041430"; got != want {
		t.Errorf("LeaseKey() = %q, want %q", got, want)
	}
	if !f.GroupTarget() {
		t.Error("GroupTarget() = false for group payload")
	}
}
