package domain

type party uint8

const (
	partyClient party = 1 << iota
	partyProvider
	partyAdmin
)

type edge struct {
	from Status
	to   Status
}

var transitions = map[edge]party{
	{StatusPending, StatusApproved}:   partyProvider | partyAdmin,
	{StatusPending, StatusRejected}:   partyProvider | partyAdmin,
	{StatusPending, StatusCancelled}:  partyClient | partyProvider | partyAdmin,
	{StatusApproved, StatusCancelled}: partyClient | partyProvider | partyAdmin,
	{StatusApproved, StatusCompleted}: partyProvider | partyAdmin,
}

func partiesOf(appt Appointment, caller Caller) party {
	var p party
	if caller.IsAdmin() {
		p |= partyAdmin
	}
	if caller.ID != "" && caller.ID == appt.ProviderID {
		p |= partyProvider
	}
	if caller.ID != "" && caller.ID == appt.ClientID {
		p |= partyClient
	}
	return p
}

// CanView reports whether caller is a participant of appt or an admin.
func CanView(appt Appointment, caller Caller) bool {
	return partiesOf(appt, caller) != 0
}

// CheckTransition decides whether caller may move appt to status to.
// Outsiders get an authorization error before the edge is looked at.
func CheckTransition(appt Appointment, to Status, caller Caller) error {
	parties := partiesOf(appt, caller)
	if parties == 0 {
		return AuthorizationError("only the appointment's client, provider or an admin can change its status")
	}

	if appt.Status.Terminal() {
		return &Error{Kind: KindValidation, Code: CodeIllegalTransition, Message: "appointment is already " + string(appt.Status)}
	}
	allowed, ok := transitions[edge{from: appt.Status, to: to}]
	if !ok {
		return illegalTransition(appt.Status, to)
	}
	if allowed&parties == 0 {
		return AuthorizationError("not allowed to change status from " + string(appt.Status) + " to " + string(to))
	}
	return nil
}
