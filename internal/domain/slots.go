package domain

import (
	"iter"
	"time"
)

const (
	DefaultSlotGranularity = 60
	MinSlotGranularity     = 5
	MaxSlotGranularity     = 24 * 60
)

// AvailableSlots yields bookable slot starts on the calendar day of date (its
// year, month and day, interpreted in the provider's timezone). Each window is
// walked in steps of granularity; a start is yielded when the slot
// [start, start+granularity) fits the window and overlaps no busy interval.
//
// The sequence is pure: ranging over it again produces the same slots.
func AvailableSlots(av Availability, date time.Time, granularity time.Duration, busy []Interval) (iter.Seq[time.Time], error) {
	if granularity < MinSlotGranularity*time.Minute || granularity > MaxSlotGranularity*time.Minute {
		return nil, ValidationError("granularity must be between %d and %d minutes", MinSlotGranularity, MaxSlotGranularity)
	}
	loc, err := av.Location()
	if err != nil {
		return nil, err
	}
	day := DayBounds(date, loc).Start

	return func(yield func(time.Time) bool) {
		for w := range av.WindowsFor(day.Weekday()) {
			span := w.On(day, loc)
			for start := span.Start; !start.Add(granularity).After(span.End); start = start.Add(granularity) {
				slot := Interval{Start: start, End: start.Add(granularity)}
				if overlapsAny(slot, busy) {
					continue
				}
				if !yield(start) {
					return
				}
			}
		}
	}, nil
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
