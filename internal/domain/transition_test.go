package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCheckTransition_ScenarioD(t *testing.T) {
	provider := Caller{ID: "p1", Role: RoleProvider}
	appt := booked(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 60, StatusPending)

	if err := CheckTransition(appt, StatusApproved, provider); err != nil {
		t.Fatalf("pending->approved error: %v", err)
	}
	appt.Status = StatusApproved

	if err := CheckTransition(appt, StatusCancelled, provider); err != nil {
		t.Fatalf("approved->cancelled error: %v", err)
	}
	appt.Status = StatusCancelled

	err := CheckTransition(appt, StatusApproved, provider)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("cancelled->approved err = %v, want %v", err, ErrIllegalTransition)
	}
}

func TestCheckTransition_Table(t *testing.T) {
	statuses := []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted}
	callers := map[string]Caller{
		"client":         {ID: "c1", Role: RoleClient},
		"provider":       {ID: "p1", Role: RoleProvider},
		"admin":          {ID: "root", Role: RoleAdmin},
		"stranger":       {ID: "x9", Role: RoleClient},
		"other provider": {ID: "p2", Role: RoleProvider},
	}

	allowed := map[edge]map[string]bool{
		{StatusPending, StatusApproved}:   {"provider": true, "admin": true},
		{StatusPending, StatusRejected}:   {"provider": true, "admin": true},
		{StatusPending, StatusCancelled}:  {"client": true, "provider": true, "admin": true},
		{StatusApproved, StatusCancelled}: {"client": true, "provider": true, "admin": true},
		{StatusApproved, StatusCompleted}: {"provider": true, "admin": true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			for name, caller := range callers {
				appt := booked(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 60, from)
				err := CheckTransition(appt, to, caller)

				roles, legal := allowed[edge{from, to}]
				switch {
				case name == "stranger" || name == "other provider":
					if KindOf(err) != KindAuthorization {
						t.Fatalf("%s %s->%s: err = %v, want authorization error", name, from, to, err)
					}
				case !legal:
					if !errors.Is(err, ErrIllegalTransition) {
						t.Fatalf("%s %s->%s: err = %v, want IllegalTransition", name, from, to, err)
					}
				case roles[name]:
					if err != nil {
						t.Fatalf("%s %s->%s: err = %v, want nil", name, from, to, err)
					}
				default:
					if KindOf(err) != KindAuthorization {
						t.Fatalf("%s %s->%s: err = %v, want authorization error", name, from, to, err)
					}
				}
			}
		}
	}
}

func TestCheckTransition_TerminalStatusesAreFinal(t *testing.T) {
	admin := Caller{ID: "root", Role: RoleAdmin}
	for _, from := range []Status{StatusRejected, StatusCancelled, StatusCompleted} {
		if !from.Terminal() || from.Active() {
			t.Fatalf("%s: Terminal = %v, Active = %v", from, from.Terminal(), from.Active())
		}
		appt := booked(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 60, from)
		err := CheckTransition(appt, StatusPending, admin)
		if !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("%s->pending err = %v, want %v", from, err, ErrIllegalTransition)
		}
		if want := "appointment is already " + string(from); err.Error() != want {
			t.Fatalf("message = %q, want %q", err.Error(), want)
		}
	}
	for _, st := range []Status{StatusPending, StatusApproved} {
		if st.Terminal() {
			t.Fatalf("%s reported terminal", st)
		}
	}
}

func TestParseStatusAndRole(t *testing.T) {
	if _, err := ParseStatus("done"); KindOf(err) != KindValidation {
		t.Fatalf("ParseStatus(done) err = %v", err)
	}
	if s, err := ParseStatus("approved"); err != nil || s != StatusApproved {
		t.Fatalf("ParseStatus(approved) = %q, %v", s, err)
	}
	if r, ok := ParseRole("Expert"); !ok || r != RoleProvider {
		t.Fatalf("ParseRole(Expert) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("guest"); ok {
		t.Fatalf("ParseRole(guest) should fail")
	}
}
