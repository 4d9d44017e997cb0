package domain

import (
	"time"
)

// ResolveBooking decides whether the proposed interval can be booked against
// the provider's availability and its current appointments. Inactive
// appointments in existing are ignored.
func ResolveBooking(av Availability, proposed Interval, existing []Appointment) error {
	loc, err := av.Location()
	if err != nil {
		return err
	}
	if !withinAvailability(av, proposed, loc) {
		return ErrOutsideAvailability
	}
	for _, a := range existing {
		if !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(proposed) {
			return ErrSlotTaken
		}
	}
	return nil
}

func withinAvailability(av Availability, proposed Interval, loc *time.Location) bool {
	local := proposed.Start.In(loc)
	for w := range av.WindowsFor(local.Weekday()) {
		if w.On(local, loc).Contains(proposed) {
			return true
		}
	}
	return false
}

// DayBounds returns [00:00, next 00:00) of date's calendar day in loc.
func DayBounds(date time.Time, loc *time.Location) Interval {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: time.Date(y, m, d+1, 0, 0, 0, 0, loc)}
}
