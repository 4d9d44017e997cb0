package domain

import (
	"context"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const DefaultTimezone = "Europe/Istanbul"

// AvailabilityWindow is a recurring weekly interval [StartTime, EndTime) on DayOfWeek (0 = Sunday).
type AvailabilityWindow struct {
	DayOfWeek int   `json:"day_of_week"`
	StartTime Clock `json:"start_time"`
	EndTime   Clock `json:"end_time"`
}

// On returns the absolute interval the window covers on the calendar day of date.
func (w AvailabilityWindow) On(date time.Time, loc *time.Location) Interval {
	return Interval{Start: w.StartTime.On(date, loc), End: w.EndTime.On(date, loc)}
}

type Availability struct {
	bun.BaseModel `bun:"table:availabilities"`

	ProviderID string               `bun:"provider_id,pk" json:"provider_id"`
	Windows    []AvailabilityWindow `bun:"windows,type:jsonb,notnull" json:"windows"`
	Timezone   string               `bun:"timezone,notnull" json:"timezone"`
	CreatedAt  time.Time            `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt  time.Time            `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Availability) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Location resolves the stored timezone label.
func (a Availability) Location() (*time.Location, error) {
	tz := strings.TrimSpace(a.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, ValidationError("invalid timezone %q", a.Timezone)
	}
	return loc, nil
}

// WindowsFor yields the windows for day in ascending start order.
func (a Availability) WindowsFor(day time.Weekday) iter.Seq[AvailabilityWindow] {
	return func(yield func(AvailabilityWindow) bool) {
		for _, w := range a.sortedWindows() {
			if w.DayOfWeek != int(day) {
				continue
			}
			if !yield(w) {
				return
			}
		}
	}
}

func (a Availability) sortedWindows() []AvailabilityWindow {
	out := make([]AvailabilityWindow, len(a.Windows))
	copy(out, a.Windows)
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// Validate checks every window and that no two windows on the same day overlap.
func (a Availability) Validate() error {
	if strings.TrimSpace(a.ProviderID) == "" {
		return ValidationError("provider_id is required")
	}
	if _, err := a.Location(); err != nil {
		return err
	}
	for _, w := range a.Windows {
		if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
			return ValidationError("day_of_week must be between 0 and 6")
		}
		if w.StartTime < 0 || w.EndTime > MinutesPerDay {
			return ValidationError("window times must be within the day")
		}
		if w.StartTime >= w.EndTime {
			return ValidationError("window %s-%s: start_time must be before end_time", w.StartTime, w.EndTime)
		}
	}

	sorted := a.sortedWindows()
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.DayOfWeek == cur.DayOfWeek && cur.StartTime < prev.EndTime {
			return ValidationError(
				"windows %s-%s and %s-%s overlap on day %d",
				prev.StartTime, prev.EndTime, cur.StartTime, cur.EndTime, cur.DayOfWeek,
			)
		}
	}
	return nil
}
