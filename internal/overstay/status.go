package overstay

// Status is the lifecycle state of an overstay penalty record
type Status string

const (
	StatusDetected        Status = "detected"
	StatusGracePeriod     Status = "grace_period"
	StatusPendingReview   Status = "pending_review"
	StatusPenaltyApproved Status = "penalty_approved"
	StatusPenaltyWaived   Status = "penalty_waived"
	StatusChargePending   Status = "charge_pending"
	StatusChargeSucceeded Status = "charge_succeeded"
	StatusChargeFailed    Status = "charge_failed"
	StatusResolved        Status = "resolved"
	StatusEscalated       Status = "escalated"
)

func (s Status) String() string {
	return string(s)
}

// IsOpen reports whether the record still blocks a new one for the same booking
func (s Status) IsOpen() bool {
	return s != StatusResolved
}

var transitions = map[Status][]Status{
	StatusDetected:        {StatusGracePeriod},
	StatusGracePeriod:     {StatusPendingReview, StatusResolved},
	StatusPendingReview:   {StatusPenaltyApproved, StatusPenaltyWaived},
	StatusPenaltyApproved: {StatusChargePending},
	StatusChargePending:   {StatusChargeSucceeded, StatusChargeFailed},
	StatusChargeSucceeded: {StatusResolved},
	StatusChargeFailed:    {StatusEscalated},
	StatusPenaltyWaived:   {StatusResolved},
	StatusEscalated:       {StatusResolved},
}

// CanTransition reports whether from -> to is an edge of the penalty machine
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source names who caused a penalty transition
type Source string

const (
	SourceSystem    Source = "system"
	SourceManager   Source = "manager"
	SourceAdmin     Source = "admin"
	SourceProcessor Source = "processor"
)
