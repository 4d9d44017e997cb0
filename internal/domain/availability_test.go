package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "24:00", want: MinutesPerDay},
		{in: "24:01", wantErr: true},
		{in: "9:30", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Fatalf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestAvailabilityWindow_JSON(t *testing.T) {
	var w AvailabilityWindow
	if err := json.Unmarshal([]byte(`{"day_of_week":1,"start_time":"09:00","end_time":"12:30"}`), &w); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if w.DayOfWeek != 1 || w.StartTime != 540 || w.EndTime != 750 {
		t.Fatalf("window = %+v", w)
	}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b) != `{"day_of_week":1,"start_time":"09:00","end_time":"12:30"}` {
		t.Fatalf("json = %s", b)
	}

	if err := json.Unmarshal([]byte(`{"day_of_week":1,"start_time":"9am","end_time":"12:30"}`), &w); err == nil {
		t.Fatalf("expected error for malformed clock")
	}
}

func TestAvailabilityValidate(t *testing.T) {
	tests := []struct {
		name    string
		windows []AvailabilityWindow
		tz      string
		wantErr bool
	}{
		{name: "empty is valid"},
		{name: "disjoint windows", windows: []AvailabilityWindow{window(1, "09:00", "12:00"), window(1, "13:00", "17:00")}},
		{name: "touching windows", windows: []AvailabilityWindow{window(1, "09:00", "12:00"), window(1, "12:00", "13:00")}},
		{name: "same times on different days", windows: []AvailabilityWindow{window(1, "09:00", "12:00"), window(2, "09:00", "12:00")}},
		{name: "overlapping windows", windows: []AvailabilityWindow{window(1, "13:00", "17:00"), window(1, "09:00", "13:30")}, wantErr: true},
		{name: "nested windows", windows: []AvailabilityWindow{window(3, "09:00", "17:00"), window(3, "10:00", "11:00")}, wantErr: true},
		{name: "start equals end", windows: []AvailabilityWindow{window(1, "09:00", "09:00")}, wantErr: true},
		{name: "start after end", windows: []AvailabilityWindow{window(1, "10:00", "09:00")}, wantErr: true},
		{name: "day too large", windows: []AvailabilityWindow{window(7, "09:00", "10:00")}, wantErr: true},
		{name: "negative day", windows: []AvailabilityWindow{{DayOfWeek: -1, StartTime: 60, EndTime: 120}}, wantErr: true},
		{name: "unknown timezone", tz: "Not/AZone", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Availability{ProviderID: "p1", Timezone: tt.tz, Windows: tt.windows}.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if KindOf(err) != KindValidation {
					t.Fatalf("kind = %q, want %q", KindOf(err), KindValidation)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v, want nil", err)
			}
		})
	}
}

func TestAvailabilityValidate_RequiresProvider(t *testing.T) {
	err := Availability{Timezone: "UTC"}.Validate()
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeInvalidInput {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}

func TestWindowsFor_FiltersAndSorts(t *testing.T) {
	av := Availability{ProviderID: "p1", Windows: []AvailabilityWindow{
		window(1, "14:00", "15:00"),
		window(2, "09:00", "10:00"),
		window(1, "09:00", "10:00"),
	}}

	var got []string
	for w := range av.WindowsFor(1) {
		got = append(got, w.StartTime.String())
	}
	if len(got) != 2 || got[0] != "09:00" || got[1] != "14:00" {
		t.Fatalf("windows = %v, want [09:00 14:00]", got)
	}

	for range av.WindowsFor(0) {
		t.Fatalf("expected no windows on Sunday")
	}
}

func TestAvailabilityLocation_DefaultsTimezone(t *testing.T) {
	loc, err := Availability{ProviderID: "p1"}.Location()
	if err != nil {
		t.Fatalf("Location error: %v", err)
	}
	if loc.String() != DefaultTimezone {
		t.Fatalf("location = %s, want %s", loc, DefaultTimezone)
	}
}
