package domain

import (
	"errors"
	"testing"
	"time"
)

// 2026-01-05 is a Monday.
var monday = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hh, mm int) time.Time {
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func window(day int, start, end string) AvailabilityWindow {
	return AvailabilityWindow{DayOfWeek: day, StartTime: MustParseClock(start), EndTime: MustParseClock(end)}
}

func booked(start time.Time, minutes int, status Status) Appointment {
	return Appointment{ProviderID: "p1", ClientID: "c1", ScheduledAt: start, DurationMinutes: minutes, Status: status}
}

func TestResolveBooking_ScenarioA(t *testing.T) {
	av := Availability{ProviderID: "p1", Timezone: "UTC", Windows: []AvailabilityWindow{window(1, "09:00", "12:00")}}

	var ledger []Appointment
	book := func(start time.Time) error {
		a := booked(start, 60, StatusPending)
		if err := ResolveBooking(av, a.Interval(), ledger); err != nil {
			return err
		}
		ledger = append(ledger, a)
		return nil
	}

	if err := book(at(monday, 9, 0)); err != nil {
		t.Fatalf("09:00 booking error: %v", err)
	}
	if err := book(at(monday, 9, 30)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("09:30 booking err = %v, want %v", err, ErrSlotTaken)
	}
	if err := book(at(monday, 10, 0)); err != nil {
		t.Fatalf("10:00 booking error: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("len(ledger) = %d, want 2", len(ledger))
	}
}

func TestResolveBooking_ScenarioB_ExceedsWindow(t *testing.T) {
	av := Availability{ProviderID: "p1", Timezone: "UTC", Windows: []AvailabilityWindow{window(2, "09:00", "10:00")}}
	tuesday := monday.AddDate(0, 0, 1)

	err := ResolveBooking(av, booked(at(tuesday, 9, 30), 60, StatusPending).Interval(), nil)
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("err = %v, want %v", err, ErrOutsideAvailability)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindConflict)
	}
}

func TestResolveBooking_Containment(t *testing.T) {
	av := Availability{ProviderID: "p1", Timezone: "UTC", Windows: []AvailabilityWindow{
		window(1, "09:00", "12:00"),
		window(1, "13:00", "24:00"),
	}}

	tests := []struct {
		name    string
		start   time.Time
		minutes int
		wantErr error
	}{
		{name: "fills window exactly", start: at(monday, 9, 0), minutes: 180},
		{name: "ends at window end", start: at(monday, 11, 0), minutes: 60},
		{name: "starts before window", start: at(monday, 8, 45), minutes: 30, wantErr: ErrOutsideAvailability},
		{name: "spans gap between windows", start: at(monday, 11, 30), minutes: 120, wantErr: ErrOutsideAvailability},
		{name: "ends at midnight", start: at(monday, 23, 0), minutes: 60},
		{name: "crosses midnight", start: at(monday, 23, 30), minutes: 60, wantErr: ErrOutsideAvailability},
		{name: "wrong weekday", start: at(monday.AddDate(0, 0, 1), 9, 0), minutes: 60, wantErr: ErrOutsideAvailability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ResolveBooking(av, booked(tt.start, tt.minutes, StatusPending).Interval(), nil)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveBooking_UsesProviderTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	av := Availability{ProviderID: "p1", Timezone: "America/New_York", Windows: []AvailabilityWindow{window(1, "09:00", "12:00")}}

	// 09:00 in New York on a Monday is 14:00 UTC.
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, loc).UTC()
	if err := ResolveBooking(av, booked(start, 60, StatusPending).Interval(), nil); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}

	startUTC := at(monday, 9, 0)
	if err := ResolveBooking(av, booked(startUTC, 60, StatusPending).Interval(), nil); !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("err = %v, want %v", err, ErrOutsideAvailability)
	}
}

func TestResolveBooking_IgnoresInactiveAndTouchingAppointments(t *testing.T) {
	av := Availability{ProviderID: "p1", Timezone: "UTC", Windows: []AvailabilityWindow{window(1, "09:00", "12:00")}}
	existing := []Appointment{
		booked(at(monday, 10, 0), 60, StatusCancelled),
		booked(at(monday, 10, 0), 60, StatusRejected),
		booked(at(monday, 9, 0), 60, StatusApproved),
		booked(at(monday, 11, 0), 60, StatusPending),
	}

	if err := ResolveBooking(av, booked(at(monday, 10, 0), 60, StatusPending).Interval(), existing); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if err := ResolveBooking(av, booked(at(monday, 10, 45), 30, StatusPending).Interval(), existing); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want %v", err, ErrSlotTaken)
	}
}

func TestInterval_HalfOpen(t *testing.T) {
	a := Interval{Start: at(monday, 9, 0), End: at(monday, 10, 0)}
	b := Interval{Start: at(monday, 10, 0), End: at(monday, 11, 0)}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Fatalf("touching intervals must not overlap")
	}
	c := Interval{Start: at(monday, 9, 59), End: at(monday, 10, 30)}
	if !a.Overlaps(c) || !c.Overlaps(a) {
		t.Fatalf("intervals sharing a minute must overlap")
	}
}
