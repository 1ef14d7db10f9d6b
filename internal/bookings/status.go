package bookings

// Status is shared by booking groups and their storage and equipment bookings
type Status string

const (
	StatusPending               Status = "pending"
	StatusConfirmed             Status = "confirmed"
	StatusCancellationRequested Status = "cancellation_requested"
	StatusCancelled             Status = "cancelled"
	StatusCompleted             Status = "completed"
)

// IsValid checks if the booking status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancellationRequested, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition exists
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Event drives the booking status machine
type Event string

const (
	EventApprove             Event = "approve"
	EventReject              Event = "reject"
	EventCancel              Event = "cancel"
	EventComplete            Event = "complete"
	EventRequestCancellation Event = "request_cancellation"
	EventAcceptCancellation  Event = "accept_cancellation"
	EventDeclineCancellation Event = "decline_cancellation"
)

// transitions is the single table for the booking status machine
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventApprove: StatusConfirmed,
		EventReject:  StatusCancelled,
		EventCancel:  StatusCancelled,
	},
	StatusConfirmed: {
		EventCancel:              StatusCancelled,
		EventComplete:            StatusCompleted,
		EventRequestCancellation: StatusCancellationRequested,
	},
	StatusCancellationRequested: {
		EventAcceptCancellation:  StatusCancelled,
		EventDeclineCancellation: StatusConfirmed,
	},
}

// Next returns the status reached from current on ev. Unknown combinations fail closed.
func Next(current Status, ev Event) (Status, bool) {
	to, ok := transitions[current][ev]
	return to, ok
}

// CanTransition reports whether some event leads from one status to the other
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckoutStatus tracks storage release verification
type CheckoutStatus string

const (
	CheckoutActive     CheckoutStatus = "active"
	CheckoutRequested  CheckoutStatus = "checkout_requested"
	CheckoutApproved   CheckoutStatus = "checkout_approved"
	CheckoutClaimFiled CheckoutStatus = "checkout_claim_filed"
)

func (s CheckoutStatus) String() string {
	return string(s)
}

// CheckoutEvent drives the checkout machine
type CheckoutEvent string

const (
	CheckoutEventRequest   CheckoutEvent = "request"
	CheckoutEventApprove   CheckoutEvent = "approve"
	CheckoutEventAutoClear CheckoutEvent = "auto_clear"
	CheckoutEventFileClaim CheckoutEvent = "file_claim"
	CheckoutEventReject    CheckoutEvent = "reject"
)

// checkoutTransitions only moves forward; reject is the one way back to active
var checkoutTransitions = map[CheckoutStatus]map[CheckoutEvent]CheckoutStatus{
	CheckoutActive: {
		CheckoutEventRequest: CheckoutRequested,
	},
	CheckoutRequested: {
		CheckoutEventApprove:   CheckoutApproved,
		CheckoutEventAutoClear: CheckoutApproved,
		CheckoutEventFileClaim: CheckoutClaimFiled,
		CheckoutEventReject:    CheckoutActive,
	},
}

// NextCheckout returns the checkout status reached from current on ev
func NextCheckout(current CheckoutStatus, ev CheckoutEvent) (CheckoutStatus, bool) {
	to, ok := checkoutTransitions[current][ev]
	return to, ok
}
