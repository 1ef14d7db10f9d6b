package payments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a PaymentAuthorization
type Status string

const (
	StatusAuthorizedHold    Status = "authorized_hold"
	StatusCaptured          Status = "captured"
	StatusVoided            Status = "voided"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusRefunded          Status = "refunded"
)

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further mutation is allowed
func (s Status) IsTerminal() bool {
	return s == StatusVoided || s == StatusRefunded
}

// IsCaptured reports whether money has moved from the payer
func (s Status) IsCaptured() bool {
	return s == StatusCaptured || s == StatusPartiallyRefunded || s == StatusRefunded
}

// Kind distinguishes the booking group's hold from off-session charges
type Kind string

const (
	KindHold   Kind = "hold"
	KindCharge Kind = "charge"
)

// PaymentAuthorization is one processor payment intent and its local amounts
type PaymentAuthorization struct {
	ID                    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookingGroupID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"booking_group_id"`
	Kind                  Kind       `gorm:"type:varchar(10);not null;default:'hold'" json:"kind"`
	ProcessorRef          string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"processor_ref"`
	IdempotencyKey        *string    `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	CustomerID            string     `gorm:"type:varchar(255)" json:"customer_id,omitempty"`
	PaymentMethodID       string     `gorm:"type:varchar(255)" json:"payment_method_id,omitempty"`
	Currency              string     `gorm:"type:varchar(3);not null" json:"currency"`
	AuthorizedAmountCents int64      `gorm:"not null;check:chk_payment_amounts,captured_amount_cents <= authorized_amount_cents AND refunded_amount_cents <= captured_amount_cents" json:"authorized_amount_cents"`
	CapturedAmountCents   int64      `gorm:"not null;default:0" json:"captured_amount_cents"`
	RefundedAmountCents   int64      `gorm:"not null;default:0" json:"refunded_amount_cents"`
	Status                Status     `gorm:"type:varchar(30);index;not null" json:"status"`
	Description           string     `json:"description,omitempty"`
	CapturedAt            *time.Time `json:"captured_at,omitempty"`
	VoidedAt              *time.Time `json:"voided_at,omitempty"`
	RefundedAt            *time.Time `json:"refunded_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (PaymentAuthorization) TableName() string {
	return "payment_authorizations"
}

// Snapshot is the mutable part of an authorization that transitions compare and swap
type Snapshot struct {
	Status   Status
	Captured int64
	Refunded int64
}

func (a *PaymentAuthorization) Snapshot() Snapshot {
	return Snapshot{Status: a.Status, Captured: a.CapturedAmountCents, Refunded: a.RefundedAmountCents}
}

// RefundableCents is what is left to give back
func (a *PaymentAuthorization) RefundableCents() int64 {
	return a.CapturedAmountCents - a.RefundedAmountCents
}

// ProcessedEvent deduplicates external confirmations and local command replays
type ProcessedEvent struct {
	EventID         string    `gorm:"type:varchar(255);primaryKey" json:"event_id"`
	AuthorizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"authorization_id"`
	Type            string    `gorm:"type:varchar(50);not null" json:"type"`
	ProcessedAt     time.Time `gorm:"not null" json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_payment_events"
}
